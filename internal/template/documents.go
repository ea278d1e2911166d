package template

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"

	"shipyard/internal/api"
)

// clusterScopedKinds are refused in component templates: the engine only
// manages namespaced objects of the instance.
var clusterScopedKinds = map[string]bool{
	"Namespace":                      true,
	"ClusterRole":                    true,
	"ClusterRoleBinding":             true,
	"CustomResourceDefinition":       true,
	"PersistentVolume":               true,
	"StorageClass":                   true,
	"PriorityClass":                  true,
	"GatewayClass":                   true,
	"MutatingWebhookConfiguration":   true,
	"ValidatingWebhookConfiguration": true,
}

// decodeDocuments splits a multi-document YAML stream into objects. Empty and
// comment-only documents are dropped.
func decodeDocuments(rendered string) ([]*unstructured.Unstructured, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(strings.NewReader(rendered)))
	var out []*unstructured.Unstructured
	for i := 0; ; i++ {
		raw, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		data, err := yaml.YAMLToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
			continue
		}
		obj := &unstructured.Unstructured{}
		if err := obj.UnmarshalJSON(data); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		out = append(out, obj)
	}
}

// normalize checks identity fields and pins the object to the target namespace.
func normalize(obj *unstructured.Unstructured, namespace string) error {
	if obj.GetAPIVersion() == "" || obj.GetKind() == "" {
		return fmt.Errorf("document is missing apiVersion or kind")
	}
	if obj.GetName() == "" {
		return fmt.Errorf("%s document has no metadata.name", obj.GetKind())
	}
	if clusterScopedKinds[obj.GetKind()] {
		return fmt.Errorf("cluster-scoped kind %s is not allowed", obj.GetKind())
	}
	switch ns := obj.GetNamespace(); ns {
	case "":
		obj.SetNamespace(namespace)
	case namespace:
	default:
		return fmt.Errorf("%s %s targets namespace %q, expected %q", obj.GetKind(), obj.GetName(), ns, namespace)
	}
	return nil
}

// injectOwnership writes the ownership labels and annotations. Values set by
// the template author for these keys are overwritten.
func injectOwnership(obj *unstructured.Unstructured, inst *api.Instance, comp api.Component, templateName string) {
	labels := obj.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}
	labels[api.LabelManagedBy] = api.ManagedByValue
	labels[api.LabelInstance] = inst.UUID
	labels[api.LabelComponent] = comp.UUID
	obj.SetLabels(labels)

	annotations := obj.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[api.AnnotationOwner] = api.OwnerValue(inst.UUID, comp.UUID)
	annotations[api.AnnotationComponentName] = comp.Name
	annotations[api.AnnotationTemplate] = templateName
	delete(annotations, api.AnnotationDigest)
	obj.SetAnnotations(annotations)
}

// Digest returns the content digest of an object: the SHA-256 of its JSON
// encoding with the digest annotation removed. encoding/json sorts map keys,
// so equal objects always hash equally.
func Digest(obj *unstructured.Unstructured) (string, error) {
	cp := obj.DeepCopy()
	if annotations := cp.GetAnnotations(); annotations != nil {
		delete(annotations, api.AnnotationDigest)
		if len(annotations) == 0 {
			annotations = nil
		}
		cp.SetAnnotations(annotations)
	}
	data, err := json.Marshal(cp.Object)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// stampDigest computes the digest and records it in the digest annotation.
func stampDigest(obj *unstructured.Unstructured) (string, error) {
	digest, err := Digest(obj)
	if err != nil {
		return "", err
	}
	annotations := obj.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[api.AnnotationDigest] = digest
	obj.SetAnnotations(annotations)
	return digest, nil
}
