package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/labring/httpgate/pkg/config"
	"github.com/labring/httpgate/pkg/kube"
	"github.com/labring/httpgate/pkg/watcher"
)

func devbox(namespace, name, uniqueID string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "devbox.sealos.io/v1alpha2",
		"kind":       "Devbox",
		"metadata":   map[string]interface{}{"namespace": namespace, "name": name},
	}}
	_ = unstructured.SetNestedField(u.Object, uniqueID, "status", "network", "uniqueID")
	return u
}

func devboxPod(namespace, devboxName, ip string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: namespace,
			Name:      devboxName + "-0",
			Labels:    map[string]string{"app.kubernetes.io/part-of": "devbox"},
			OwnerReferences: []metav1.OwnerReference{
				{APIVersion: "devbox.sealos.io/v1alpha2", Kind: "Devbox", Name: devboxName},
			},
		},
		Status: corev1.PodStatus{PodIP: ip},
	}
}

var _ = Describe("App", Ordered, func() {
	var (
		backend   *httptest.Server
		port      int
		dynClient *dynamicfake.FakeDynamicClient
		clientset *fake.Clientset
		app       *App
		cancel    context.CancelFunc
		done      chan error
		client    *http.Client
	)

	proxyGet := func(tenantID string) (int, string) {
		req, err := http.NewRequest(http.MethodGet, "http://"+app.ProxyAddr().String()+"/hello", nil)
		Expect(err).NotTo(HaveOccurred())
		req.Host = fmt.Sprintf("devbox-%s-%d.devbox.sealos.io", tenantID, port)
		resp, err := client.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, string(body)
	}

	readyz := func() int {
		resp, err := client.Get("http://" + app.AdminAddr().String() + "/readyz")
		if err != nil {
			return 0
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	BeforeAll(func() {
		backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "hello from "+r.Host)
		}))
		port = backend.Listener.Addr().(*net.TCPAddr).Port

		dynClient = dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
			runtime.NewScheme(),
			map[schema.GroupVersionResource]string{watcher.DefaultDevboxGVR: "DevboxList"},
			devbox("ns-user1", "my-devbox", "outdoor-before-78648"),
		)
		clientset = fake.NewSimpleClientset(devboxPod("ns-user1", "my-devbox", "127.0.0.1"))

		cfg := config.DefaultConfig()
		cfg.ListenAddress = "127.0.0.1:0"
		cfg.AdminAddress = "127.0.0.1:0"
		cfg.WatcherRestartDelay = 50 * time.Millisecond
		cfg.ShutdownTimeout = 5 * time.Second
		cfg.AccessLog = false

		var err error
		app, err = New(cfg, &kube.Clients{Dynamic: dynClient, Kubernetes: clientset}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(app.Listen()).To(Succeed())

		client = &http.Client{Timeout: 5 * time.Second}

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- app.Run(ctx) }()
	})

	AfterAll(func() {
		if cancel != nil {
			cancel()
		}
		if backend != nil {
			backend.Close()
		}
	})

	It("becomes ready after both watchers sync", func() {
		Eventually(readyz, 5*time.Second, 20*time.Millisecond).Should(Equal(http.StatusOK))
		Expect(app.Registry().TenantCount()).To(Equal(1))
		Expect(app.Registry().PodAddressCount()).To(Equal(1))
	})

	It("routes a request to the devbox pod", func() {
		code, body := proxyGet("outdoor-before-78648")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(Equal("hello from devbox-outdoor-before-78648-" + strconv.Itoa(port) + ".devbox.sealos.io"))
	})

	It("answers 404 for unknown tenants", func() {
		code, body := proxyGet("nobody")
		Expect(code).To(Equal(http.StatusNotFound))
		Expect(body).To(Equal("devbox not found"))
	})

	It("picks up a new devbox and its pod", func() {
		ctx := context.Background()
		_, err := dynClient.Resource(watcher.DefaultDevboxGVR).Namespace("ns-user2").
			Create(ctx, devbox("ns-user2", "second", "second-tenant"), metav1.CreateOptions{})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int { code, _ := proxyGet("second-tenant"); return code }, 5*time.Second, 20*time.Millisecond).
			Should(Equal(http.StatusServiceUnavailable))

		_, err = clientset.CoreV1().Pods("ns-user2").Create(ctx, devboxPod("ns-user2", "second", "127.0.0.1"), metav1.CreateOptions{})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int { code, _ := proxyGet("second-tenant"); return code }, 5*time.Second, 20*time.Millisecond).
			Should(Equal(http.StatusOK))
	})

	It("answers 503 once the pod is gone", func() {
		Expect(clientset.CoreV1().Pods("ns-user1").Delete(context.Background(), "my-devbox-0", metav1.DeleteOptions{})).To(Succeed())

		Eventually(func() string { _, body := proxyGet("outdoor-before-78648"); return body }, 5*time.Second, 20*time.Millisecond).
			Should(Equal("devbox not running"))
	})

	It("stops cleanly when the context is cancelled", func() {
		cancel()
		Eventually(done, 10*time.Second).Should(Receive(BeNil()))
	})
})

var _ = Describe("New", func() {
	It("rejects missing clients", func() {
		_, err := New(config.DefaultConfig(), nil, nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an invalid configuration", func() {
		cfg := config.DefaultConfig()
		cfg.HostPrefix = ""
		clients := &kube.Clients{
			Dynamic:    dynamicfake.NewSimpleDynamicClient(runtime.NewScheme()),
			Kubernetes: fake.NewSimpleClientset(),
		}
		_, err := New(cfg, clients, nil)
		Expect(err).To(MatchError(ContainSubstring("host-prefix")))
	})
})
