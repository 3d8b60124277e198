// Package kubernetes provides a fetchz.Transport and fetchz.Notifier for
// Kubernetes ConfigMaps and Secrets using the Watch API.
//
// A resource key has the form "<name>/<data key>", for example
// "activities/list.json" for the "list.json" entry of the "activities"
// ConfigMap.
package kubernetes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zoobzio/fetchz"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// ResourceType specifies the type of Kubernetes resource to use.
type ResourceType int

const (
	// ConfigMap stores resources in ConfigMaps.
	ConfigMap ResourceType = iota
	// Secret stores resources in Secrets.
	Secret
)

type options struct {
	resourceType ResourceType
}

// Option configures a Transport or Notifier.
type Option func(*options)

// WithResourceType sets the resource type. Defaults to ConfigMap.
func WithResourceType(rt ResourceType) Option {
	return func(o *options) {
		o.resourceType = rt
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SplitKey splits a resource key into object name and data key.
func SplitKey(key string) (name, field string, ok bool) {
	name, field, ok = strings.Cut(strings.Trim(key, "/"), "/")
	if !ok || name == "" || field == "" {
		return "", "", false
	}
	return name, field, true
}

// Transport reads and writes data entries of ConfigMaps or Secrets in one
// namespace.
//
// GET returns the entry, PUT and POST store the request body (creating the
// object when needed) and return it. A missing object or entry fails with
// status 404 and a key without a data key part with status 400.
type Transport struct {
	client    kubernetes.Interface
	namespace string
	opts      options
}

// NewTransport creates a Transport for namespace.
func NewTransport(client kubernetes.Interface, namespace string, opts ...Option) *Transport {
	return &Transport{client: client, namespace: namespace, opts: newOptions(opts)}
}

// Send implements fetchz.Transport.
func (t *Transport) Send(ctx context.Context, key string, call fetchz.CallOptions) ([]byte, error) {
	name, field, ok := SplitKey(key)
	if !ok {
		return nil, fetchz.StatusError(http.StatusBadRequest)
	}

	switch call.Method {
	case "", http.MethodGet:
		data, err := t.data(ctx, name)
		if err != nil {
			return nil, classify(err)
		}
		value, ok := data[field]
		if !ok {
			return nil, fetchz.StatusError(http.StatusNotFound)
		}
		return value, nil

	case http.MethodPut, http.MethodPost:
		if err := t.put(ctx, name, field, call.Body); err != nil {
			return nil, classify(err)
		}
		return call.Body, nil

	default:
		return nil, fetchz.StatusError(http.StatusMethodNotAllowed)
	}
}

func (t *Transport) data(ctx context.Context, name string) (map[string][]byte, error) {
	if t.opts.resourceType == ConfigMap {
		cm, err := t.client.CoreV1().ConfigMaps(t.namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		return configMapData(cm), nil
	}

	secret, err := t.client.CoreV1().Secrets(t.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return secret.Data, nil
}

func (t *Transport) put(ctx context.Context, name, field string, value []byte) error {
	meta := metav1.ObjectMeta{Name: name, Namespace: t.namespace}

	if t.opts.resourceType == ConfigMap {
		configMaps := t.client.CoreV1().ConfigMaps(t.namespace)
		cm, err := configMaps.Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			_, err = configMaps.Create(ctx, &corev1.ConfigMap{
				ObjectMeta: meta,
				Data:       map[string]string{field: string(value)},
			}, metav1.CreateOptions{})
			return err
		}
		if err != nil {
			return err
		}
		if cm.Data == nil {
			cm.Data = make(map[string]string)
		}
		cm.Data[field] = string(value)
		_, err = configMaps.Update(ctx, cm, metav1.UpdateOptions{})
		return err
	}

	secrets := t.client.CoreV1().Secrets(t.namespace)
	secret, err := secrets.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = secrets.Create(ctx, &corev1.Secret{
			ObjectMeta: meta,
			Data:       map[string][]byte{field: value},
		}, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	if secret.Data == nil {
		secret.Data = make(map[string][]byte)
	}
	secret.Data[field] = value
	_, err = secrets.Update(ctx, secret, metav1.UpdateOptions{})
	return err
}

func classify(err error) error {
	if apierrors.IsNotFound(err) {
		return fetchz.StatusError(http.StatusNotFound)
	}
	return fetchz.NetworkError(err)
}

func configMapData(cm *corev1.ConfigMap) map[string][]byte {
	out := make(map[string][]byte, len(cm.Data)+len(cm.BinaryData))
	for k, v := range cm.Data {
		out[k] = []byte(v)
	}
	for k, v := range cm.BinaryData {
		out[k] = v
	}
	return out
}

// Notifier emits the keys of data entries that are added, changed or removed
// in any ConfigMap or Secret of one namespace.
type Notifier struct {
	client    kubernetes.Interface
	namespace string
	opts      options
	known     map[string]map[string][]byte
}

// NewNotifier creates a Notifier for namespace.
func NewNotifier(client kubernetes.Interface, namespace string, opts ...Option) *Notifier {
	return &Notifier{client: client, namespace: namespace, opts: newOptions(opts)}
}

// Notify lists the namespace and starts watching it. Entries present when
// watching starts are not reported. The watch is re-established when the
// server closes it.
func (n *Notifier) Notify(ctx context.Context) (<-chan string, error) {
	watcher, err := n.start(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan string)

	go func() {
		defer close(out)

		for {
			err := n.consume(ctx, watcher, out)
			watcher.Stop()
			if err == nil || ctx.Err() != nil {
				return
			}

			// Reconnect on error
			watcher, err = n.start(ctx)
			if err != nil {
				return
			}
		}
	}()

	return out, nil
}

// start lists the namespace to seed known state and opens a watch from the
// listed resource version.
func (n *Notifier) start(ctx context.Context) (watch.Interface, error) {
	known := make(map[string]map[string][]byte)
	var (
		version string
		watcher watch.Interface
		err     error
	)

	if n.opts.resourceType == ConfigMap {
		list, lerr := n.client.CoreV1().ConfigMaps(n.namespace).List(ctx, metav1.ListOptions{})
		if lerr != nil {
			return nil, fmt.Errorf("failed to list configmaps: %w", lerr)
		}
		for i := range list.Items {
			known[list.Items[i].Name] = configMapData(&list.Items[i])
		}
		version = list.ResourceVersion
		watcher, err = n.client.CoreV1().ConfigMaps(n.namespace).Watch(ctx, metav1.ListOptions{ResourceVersion: version})
	} else {
		list, lerr := n.client.CoreV1().Secrets(n.namespace).List(ctx, metav1.ListOptions{})
		if lerr != nil {
			return nil, fmt.Errorf("failed to list secrets: %w", lerr)
		}
		for i := range list.Items {
			known[list.Items[i].Name] = list.Items[i].Data
		}
		version = list.ResourceVersion
		watcher, err = n.client.CoreV1().Secrets(n.namespace).Watch(ctx, metav1.ListOptions{ResourceVersion: version})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start watch: %w", err)
	}

	n.known = known
	return watcher, nil
}

// consume forwards changed keys until ctx is done (nil) or the watch fails.
func (n *Notifier) consume(ctx context.Context, watcher watch.Interface, out chan<- string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return errors.New("watch channel closed")
			}
			if event.Type == watch.Error {
				return errors.New("watch error")
			}

			name, data, ok := n.extract(event.Object)
			if !ok {
				continue
			}
			if event.Type == watch.Deleted {
				data = nil
			}

			for _, field := range diff(n.known[name], data) {
				select {
				case out <- name + "/" + field:
				case <-ctx.Done():
					return nil
				}
			}
			if data == nil {
				delete(n.known, name)
			} else {
				n.known[name] = data
			}
		}
	}
}

func (n *Notifier) extract(obj runtime.Object) (string, map[string][]byte, bool) {
	switch o := obj.(type) {
	case *corev1.ConfigMap:
		if n.opts.resourceType == ConfigMap {
			return o.Name, configMapData(o), true
		}
	case *corev1.Secret:
		if n.opts.resourceType == Secret {
			return o.Name, o.Data, true
		}
	}
	return "", nil, false
}

// diff returns the data keys added, changed or removed between two versions
// of an object.
func diff(before, after map[string][]byte) []string {
	var fields []string
	for k, v := range after {
		if prev, ok := before[k]; !ok || !bytes.Equal(prev, v) {
			fields = append(fields, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			fields = append(fields, k)
		}
	}
	return fields
}

var (
	_ fetchz.Transport = (*Transport)(nil)
	_ fetchz.Notifier  = (*Notifier)(nil)
)
