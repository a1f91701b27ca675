package kadcast

import (
	"strconv"
	"time"

	"github.com/legitnull/kadcast/broadcast"
	"github.com/legitnull/kadcast/fec"
	"github.com/legitnull/kadcast/kbucket"
)

// Reference defaults, named the way original_source's public constants are
// (BUCKET_DEFAULT_NODE_TTL_MILLIS etc.), supplemented into SPEC_FULL.md's
// component design since spec.md names the knobs but not their defaults.
const (
	DefaultNodeTTL        = 30 * time.Minute
	DefaultBucketTTL      = 1 * time.Hour
	DefaultNodeEvictAfter = 5 * time.Second
	DefaultChannelSize    = 100
	DefaultBucketIPLimit  = 2
	DefaultTableIPLimit   = 10

	DefaultRefreshInterval = 30 * time.Second
	DefaultCachePruneEvery = 300 * time.Second
	DefaultCacheCapacity   = 1024
)

// config accumulates every builder-configurable knob. It is unexported —
// the public surface is the fluent Builder, mirroring the Rust
// Peer::builder(...).with_*(...) chain the reference exposes.
type config struct {
	nodeTTL        time.Duration
	bucketTTL      time.Duration
	nodeEvictAfter time.Duration
	channelSize    int
	autoPropagate  bool
	recursiveDisc  bool

	bucketIPLimit uint
	tableIPLimit  uint

	refreshInterval time.Duration
	cachePruneEvery time.Duration
	cacheCapacity   int

	broadcastCfg broadcast.Config

	// transportConf mirrors the Rust builder's transport_conf() map: a
	// free-form string->string config surface the transport/FEC layer
	// reads by key, so new knobs don't require a new With* method.
	transportConf map[string]string
}

func defaultConfig() config {
	return config{
		nodeTTL:         DefaultNodeTTL,
		bucketTTL:       DefaultBucketTTL,
		nodeEvictAfter:  DefaultNodeEvictAfter,
		channelSize:     DefaultChannelSize,
		autoPropagate:   true,
		recursiveDisc:   true,
		bucketIPLimit:   DefaultBucketIPLimit,
		tableIPLimit:    DefaultTableIPLimit,
		refreshInterval: DefaultRefreshInterval,
		cachePruneEvery: DefaultCachePruneEvery,
		cacheCapacity:   DefaultCacheCapacity,
		broadcastCfg:    broadcast.DefaultConfig(),
		transportConf:   defaultTransportConf(),
	}
}

// defaultTransportConf reproduces original_source's
// transport::default_configuration(): the reference test inserts every one
// of these keys explicitly even when using defaults, so callers reading
// transport_conf() see the full key set, not just overrides.
func defaultTransportConf() map[string]string {
	return map[string]string{
		"cache_ttl_secs":                  "60",
		"cache_prune_every_secs":          "300",
		"min_repair_packets_per_block":    "5",
		"mtu":                             "1300",
		"fec_redundancy":                  "0.15",
		"udp_backoff_timeout_micros":      "0",
		"udp_recv_buffer_size":            "SYSTEM",
		"udp_send_retry_count":            "3",
		"udp_send_retry_interval_millis":  "5",
	}
}

func (c config) bucketConfig() kbucket.Config {
	return kbucket.Config{
		NodeTTL:        c.nodeTTL,
		NodeEvictAfter: c.nodeEvictAfter,
		BucketTTL:      c.bucketTTL,
	}
}

// encoderConfig reads the FEC-relevant transport_conf keys (spec §6:
// mtu, fec_redundancy, min_repair_packets_per_block), falling back to the
// reference defaults for anything missing or unparseable.
func (c config) encoderConfig() fec.EncoderConfig {
	def := fec.DefaultEncoderConfig()
	return fec.EncoderConfig{
		MTU:              uint16(atoiOr(c.transportConf["mtu"], int(def.MTU))),
		FECRedundancy:    float32(atofOr(c.transportConf["fec_redundancy"], float64(def.FECRedundancy))),
		MinRepairPackets: uint32(atoiOr(c.transportConf["min_repair_packets_per_block"], int(def.MinRepairPackets))),
	}
}

// resolvedBroadcastCfg is broadcastCfg with the knobs that live outside
// it (autoPropagate, the transport_conf FEC keys) folded in, so Build()
// has one place to read a fully-assembled broadcast.Config from.
func (c config) resolvedBroadcastCfg() broadcast.Config {
	cfg := c.broadcastCfg
	cfg.AutoPropagate = c.autoPropagate
	cfg.EncoderCfg = c.encoderConfig()
	return cfg
}

func atofOr(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

// Option configures a Builder. Functional options, rather than the fluent
// with_* chain original_source uses directly, because a builder returning
// itself after each call isn't the idiomatic Go shape for this — the
// teacher's own p2p.Config is a plain struct literal; Option composes that
// with the "many optional knobs" shape original_source's chain covers.
type Option func(*config)

func WithNodeTTL(d time.Duration) Option        { return func(c *config) { c.nodeTTL = d } }
func WithBucketTTL(d time.Duration) Option       { return func(c *config) { c.bucketTTL = d } }
func WithNodeEvictAfter(d time.Duration) Option  { return func(c *config) { c.nodeEvictAfter = d } }
func WithChannelSize(n int) Option               { return func(c *config) { c.channelSize = n } }
func WithAutoPropagate(b bool) Option            { return func(c *config) { c.autoPropagate = b } }
func WithRecursiveDiscovery(b bool) Option       { return func(c *config) { c.recursiveDisc = b } }
func WithBucketIPLimit(n uint) Option            { return func(c *config) { c.bucketIPLimit = n } }
func WithTableIPLimit(n uint) Option             { return func(c *config) { c.tableIPLimit = n } }
func WithRefreshInterval(d time.Duration) Option { return func(c *config) { c.refreshInterval = d } }
func WithCachePruneEvery(d time.Duration) Option { return func(c *config) { c.cachePruneEvery = d } }
func WithCacheCapacity(n int) Option             { return func(c *config) { c.cacheCapacity = n } }
func WithBeta(n int) Option                      { return func(c *config) { c.broadcastCfg.Beta = n } }
func WithFEC(enabled bool) Option                { return func(c *config) { c.broadcastCfg.UseFEC = enabled } }

// WithTransportConf sets (or overrides) a single transport_conf key,
// mirroring peer_builder.transport_conf().insert(key, value) in
// original_source's builder usage.
func WithTransportConf(key, value string) Option {
	return func(c *config) { c.transportConf[key] = value }
}
