package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

// KubernetesLocker stores leases as coordination.k8s.io/v1 Lease objects so
// that several engine replicas exclude each other.
type KubernetesLocker struct {
	client    kubernetes.Interface
	namespace string
	identity  string
	now       Clock
}

// NewKubernetesLocker creates a locker storing Leases in namespace. identity
// prefixes holder IDs, typically the pod or host name.
func NewKubernetesLocker(client kubernetes.Interface, namespace, identity string, now Clock) *KubernetesLocker {
	if now == nil {
		now = time.Now
	}
	if identity == "" {
		identity = api.ManagedByValue
	}
	return &KubernetesLocker{client: client, namespace: namespace, identity: identity, now: now}
}

// LeaseName returns the Lease object name for key.
func LeaseName(key string) string {
	name := "shipyard-sync-" + strings.ToLower(key)
	if len(name) > validation.DNS1123SubdomainMaxLength {
		name = name[:validation.DNS1123SubdomainMaxLength]
	}
	return strings.TrimRight(name, "-.")
}

func (l *KubernetesLocker) lockError(key string, lease *coordinationv1.Lease) error {
	lockErr := &api.LockError{InstanceUUID: key}
	if lease != nil {
		lockErr.Holder = ptr.Deref(lease.Spec.HolderIdentity, "")
		if expires, ok := expiry(lease); ok {
			lockErr.ExpiresAt = expires
		}
	}
	return lockErr
}

func expiry(lease *coordinationv1.Lease) (time.Time, bool) {
	if lease.Spec.RenewTime == nil || lease.Spec.LeaseDurationSeconds == nil {
		return time.Time{}, false
	}
	return lease.Spec.RenewTime.Add(time.Duration(*lease.Spec.LeaseDurationSeconds) * time.Second), true
}

// Acquire implements Locker.
func (l *KubernetesLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	leases := l.client.CoordinationV1().Leases(l.namespace)
	name := LeaseName(key)
	holder := fmt.Sprintf("%s/%s", l.identity, uuid.NewString())
	now := metav1.NewMicroTime(l.now())
	seconds := int32(ttl.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	spec := coordinationv1.LeaseSpec{
		HolderIdentity:       ptr.To(holder),
		LeaseDurationSeconds: ptr.To(seconds),
		AcquireTime:          &now,
		RenewTime:            &now,
	}

	existing, err := leases.Get(ctx, name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		lease := &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: l.namespace,
				Labels: map[string]string{
					api.LabelManagedBy: api.ManagedByValue,
					api.LabelInstance:  key,
				},
			},
			Spec: spec,
		}
		created, err := leases.Create(ctx, lease, metav1.CreateOptions{})
		if apierrors.IsAlreadyExists(err) {
			return nil, l.lockError(key, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create lease %s/%s: %w", l.namespace, name, err)
		}
		return l.held(key, created), nil
	case err != nil:
		return nil, fmt.Errorf("failed to get lease %s/%s: %w", l.namespace, name, err)
	}

	if expires, ok := expiry(existing); ok && ptr.Deref(existing.Spec.HolderIdentity, "") != "" && l.now().Before(expires) {
		return nil, l.lockError(key, existing)
	}

	logging.Debug(api.SubsystemLease, "Taking over lease %s/%s from %q", l.namespace, name, ptr.Deref(existing.Spec.HolderIdentity, ""))
	existing.Spec = spec
	updated, err := leases.Update(ctx, existing, metav1.UpdateOptions{})
	if apierrors.IsConflict(err) {
		return nil, l.lockError(key, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update lease %s/%s: %w", l.namespace, name, err)
	}
	return l.held(key, updated), nil
}

func (l *KubernetesLocker) held(key string, lease *coordinationv1.Lease) *kubernetesLease {
	expires, _ := expiry(lease)
	return &kubernetesLease{
		locker:    l,
		key:       key,
		name:      lease.Name,
		holder:    ptr.Deref(lease.Spec.HolderIdentity, ""),
		expiresAt: expires,
	}
}

type kubernetesLease struct {
	locker    *KubernetesLocker
	key       string
	name      string
	holder    string
	expiresAt time.Time
}

func (k *kubernetesLease) Key() string          { return k.key }
func (k *kubernetesLease) Holder() string       { return k.holder }
func (k *kubernetesLease) ExpiresAt() time.Time { return k.expiresAt }

// Release clears the holder so the next Acquire does not wait for expiry.
func (k *kubernetesLease) Release(ctx context.Context) error {
	leases := k.locker.client.CoordinationV1().Leases(k.locker.namespace)
	current, err := leases.Get(ctx, k.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get lease %s: %w", k.name, err)
	}
	if ptr.Deref(current.Spec.HolderIdentity, "") != k.holder {
		logging.Debug(api.SubsystemLease, "Lease %s is held by %q now, not releasing", k.name, ptr.Deref(current.Spec.HolderIdentity, ""))
		return nil
	}
	current.Spec.HolderIdentity = nil
	current.Spec.RenewTime = nil
	if _, err := leases.Update(ctx, current, metav1.UpdateOptions{}); err != nil && !apierrors.IsConflict(err) {
		return fmt.Errorf("failed to release lease %s: %w", k.name, err)
	}
	return nil
}
