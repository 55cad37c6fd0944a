package payment

import (
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Credentials as stored for a gateway. When TestMode is set the Test* keys
// are the ones handed to the processor.
type Credentials struct {
	APIKey        string `yaml:"api_key" json:"api_key"`
	SecretKey     string `yaml:"secret_key" json:"secret_key"`
	PublicKey     string `yaml:"public_key" json:"public_key"`
	SecretHash    string `yaml:"secret_hash" json:"secret_hash"`
	TestMode      bool   `yaml:"test_mode" json:"test_mode"`
	TestAPIKey    string `yaml:"test_api_key" json:"test_api_key"`
	TestSecretKey string `yaml:"test_secret_key" json:"test_secret_key"`
	TestPublicKey string `yaml:"test_public_key" json:"test_public_key"`
}

// Active returns the key set in effect for the configured mode.
func (c Credentials) Active() Credentials {
	if !c.TestMode {
		return c
	}
	out := c
	out.APIKey, out.SecretKey, out.PublicKey = c.TestAPIKey, c.TestSecretKey, c.TestPublicKey
	return out
}

// GatewayConfig is the active gateway selection handed to the payment manager.
type GatewayConfig struct {
	Provider    Provider
	Credentials Credentials
}

type options struct {
	baseURL   string
	client    *Client
	reference string
	log       logrus.FieldLogger
}

type Option func(*options)

// WithBaseURL points a processor at a different API root (sandbox, tests).
func WithBaseURL(u string) Option { return func(o *options) { o.baseURL = strings.TrimRight(u, "/") } }

func WithClient(c *Client) Option { return func(o *options) { o.client = c } }

// WithReference fixes the generated reference.
func WithReference(ref string) Option { return func(o *options) { o.reference = ref } }

func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.log = l } }

// Factory builds a processor from credentials that are already mode-resolved.
type Factory func(creds Credentials, opts ...Option) (Processor, error)

// Registry maps providers onto processor factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Provider]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Provider]Factory)}
}

// DefaultRegistry binds every built-in provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ProviderBitPay, NewBitPay)
	r.Register(ProviderFlutterwave, NewFlutterwave)
	r.Register(ProviderPaystack, NewPaystack)
	return r
}

func (r *Registry) Register(p Provider, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[p] = f
}

func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds a processor for cfg.
func (r *Registry) New(cfg GatewayConfig, opts ...Option) (Processor, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no processor registered for %q", ErrConfiguration, cfg.Provider)
	}
	return f(cfg.Credentials.Active(), opts...)
}

// Gateway binds a registry to one configuration. Each call to NewProcessor
// yields a processor with a fresh reference.
type Gateway struct {
	cfg      GatewayConfig
	registry *Registry
	opts     []Option
}

// Gateway validates cfg by building a processor once.
func (r *Registry) Gateway(cfg GatewayConfig, opts ...Option) (*Gateway, error) {
	if _, err := r.New(cfg, opts...); err != nil {
		return nil, err
	}
	return &Gateway{cfg: cfg, registry: r, opts: opts}, nil
}

func (g *Gateway) Provider() Provider { return g.cfg.Provider }

func (g *Gateway) NewProcessor() (Processor, error) {
	return g.registry.New(g.cfg, g.opts...)
}

const referenceAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewReference returns prefix followed by n random lowercase alphanumerics.
func NewReference(prefix string, n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("payment: reading random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return prefix + string(buf)
}

// base carries what every processor shares.
type base struct {
	provider   Provider
	reference  string
	baseURL    string
	client     *Client
	log        logrus.FieldLogger
	currencies map[string]struct{}
}

const referenceLength = 16

func newBase(p Provider, prefix, defaultURL string, currencies []string, opts []Option) base {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	if o.client == nil {
		o.client = NewClient(0, DefaultRetryConfig(), o.log)
	}
	if o.baseURL == "" {
		o.baseURL = defaultURL
	}
	if o.reference == "" {
		o.reference = NewReference(prefix, referenceLength)
	}
	set := make(map[string]struct{}, len(currencies))
	for _, c := range currencies {
		set[c] = struct{}{}
	}
	return base{
		provider:   p,
		reference:  o.reference,
		baseURL:    o.baseURL,
		client:     o.client,
		log:        o.log.WithField("provider", string(p)),
		currencies: set,
	}
}

func (b *base) Provider() Provider { return b.provider }

func (b *base) Reference() string { return b.reference }

func (b *base) SupportsCurrency(code string) bool {
	_, ok := b.currencies[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}
