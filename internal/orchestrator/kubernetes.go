package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// gameServerResource identifies the GameServer custom resource the cluster
// controller watches. The controller reads the settings block, starts the
// actual server process and assigns the public port.
var gameServerResource = schema.GroupVersionResource{
	Group:    "stable.veverse.com",
	Version:  "v1",
	Resource: "gameservers",
}

// KubernetesAdapter drives GameServer custom resources through the dynamic
// client.
type KubernetesAdapter struct {
	client    dynamic.Interface
	namespace string
}

// NewKubernetesAdapter connects to the cluster, preferring in-cluster
// credentials and falling back to the kubeconfig file.
func NewKubernetesAdapter(kubeconfigPath, namespace string) (*KubernetesAdapter, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
		}
	}

	client, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	log.Info().Str("namespace", namespace).Msg("connected to kubernetes cluster")
	return &KubernetesAdapter{client: client, namespace: namespace}, nil
}

// CreateWorkload submits a GameServer resource for the workload. The port
// stays unassigned until the controller binds the instance, so the returned
// endpoint carries the configured host and port 0.
func (a *KubernetesAdapter) CreateWorkload(ctx context.Context, spec WorkloadSpec) (Endpoint, error) {
	name := ResourceName(spec.ID)

	resource := &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": gameServerResource.Group + "/" + gameServerResource.Version,
			"kind":       "GameServer",
			"metadata": map[string]interface{}{
				"name":   name,
				"labels": map[string]interface{}{"app": name},
			},
			"spec": map[string]interface{}{
				"image":            spec.Image,
				"imagePullSecrets": []interface{}{map[string]interface{}{"name": "registrysecret"}},
				"settings": map[string]interface{}{
					"serverId":   spec.ID,
					"serverName": spec.Name,
					"host":       spec.Host,
					"spaceId":    spec.SpaceID,
					"map":        spec.Map,
					"gameMode":   spec.GameMode,
					"maxPlayers": int64(spec.MaxPlayers),
				},
			},
		},
	}

	_, err := a.client.Resource(gameServerResource).Namespace(a.namespace).Create(ctx, resource, metav1.CreateOptions{})
	if err != nil {
		return Endpoint{}, fmt.Errorf("failed to create gameserver %s: %w", name, err)
	}

	return Endpoint{Host: spec.Host, Port: 0}, nil
}

func (a *KubernetesAdapter) DeleteWorkload(ctx context.Context, id string) error {
	name := ResourceName(id)
	err := a.client.Resource(gameServerResource).Namespace(a.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete gameserver %s: %w", name, err)
	}
	return nil
}

func (a *KubernetesAdapter) ListWorkloads(ctx context.Context) ([]RawResource, error) {
	list, err := a.client.Resource(gameServerResource).Namespace(a.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list gameservers: %w", err)
	}

	resources := make([]RawResource, 0, len(list.Items))
	for _, item := range list.Items {
		resources = append(resources, RawResource{
			Name:   item.GetName(),
			Labels: item.GetLabels(),
		})
	}
	return resources, nil
}
