// Package config loads receiver configuration from flags, environment
// variables, and an optional config file, following the spf13/viper +
// spf13/cobra BindPFlag convention used for xx_network/elixxir-client's
// command-line tools.
package config

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeyRelayURL       = "relay.url"
	KeyRelayHTTPURL   = "relay.http-url"
	KeyNumber         = "identity.number"
	KeyDeviceID       = "identity.device-id"
	KeySignalingKey   = "identity.signaling-key"
	KeyIdentityKey    = "identity.identity-key"
	KeySignedPrekey   = "identity.signed-prekey"
	KeyAuthUsername   = "identity.auth-username"
	KeyAuthPassword   = "identity.auth-password"
	KeyKeepAlivePath  = "keepalive.path"
	KeyKeepAliveDisco = "keepalive.disconnect"
	KeyPingInterval   = "keepalive.ping-interval"
	KeyAckTimeout     = "keepalive.ack-timeout"
	KeyMongoURI       = "storage.mongo-uri"
	KeyMongoDatabase  = "storage.mongo-database"
	KeyRedisAddr      = "storage.redis-addr"
	KeyRedisPassword  = "storage.redis-password"
	KeyRedisDB        = "storage.redis-db"
	KeyDevelopment    = "log.development"
)

// Config is the fully resolved set of knobs the receiver needs (§4.2, §4.3,
// §6). Populated from Load after flags are bound.
type Config struct {
	RelayURL     string
	RelayHTTPURL string

	Number       string
	DeviceID     uint32
	SignalingKey []byte

	// IdentityKey/SignedPrekey are this device's long-term X3DH keypairs,
	// hex-encoded at rest. Unless both are set, cmd/receiver loads the pair
	// stored in mongo for Number, or mints and stores a new one the first
	// time that number is seen (see DESIGN.md).
	IdentityKey []byte
	SignedPrekey []byte

	AuthUsername string
	AuthPassword string

	KeepAlivePath       string
	KeepAliveDisconnect bool
	PingInterval        time.Duration
	AckTimeout          time.Duration

	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Development bool
}

// BindFlags registers the receiver's flags on fs and wires each one into v,
// so a flag, an env var (E2ERECEIVER_*), or a config file key can all supply
// the same setting. Mirrors cmdUtils.BindFlagHelper from the teacher's
// dependency pack (xxfoundation-elixxir-client cmdUtils/flags.go).
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.String("relay-url", "ws://localhost:9090/v1/websocket", "relay websocket URL")
	fs.String("relay-http-url", "http://localhost:9090", "relay HTTP side-channel base URL")
	fs.String("number", "", "this device's account number")
	fs.Uint32("device-id", 1, "this device's device id")
	fs.String("signaling-key", "", "hex-encoded signaling key")
	fs.String("identity-key", "", "hex-encoded long-term X25519 identity private key (loaded from storage, or generated and stored, if empty)")
	fs.String("signed-prekey", "", "hex-encoded signed X25519 prekey private key (loaded from storage, or generated and stored, if empty)")
	fs.String("auth-username", "", "HTTP basic auth username for the relay side-channel")
	fs.String("auth-password", "", "HTTP basic auth password for the relay side-channel")
	fs.String("keepalive-path", "/v1/keepalive", "keepalive ping path")
	fs.Bool("keepalive-disconnect", true, "force-close the socket on keepalive timeout")
	fs.Duration("ping-interval", 50*time.Second, "keepalive ping interval")
	fs.Duration("ack-timeout", time.Second, "keepalive ack timeout")
	fs.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	fs.String("mongo-database", "e2ereceiver", "MongoDB database name")
	fs.String("redis-addr", "localhost:6379", "redis server address")
	fs.String("redis-password", "", "redis password")
	fs.Int("redis-db", 0, "redis logical database index")
	fs.Bool("dev", false, "use a development logger")

	bind(v, fs, KeyRelayURL, "relay-url")
	bind(v, fs, KeyRelayHTTPURL, "relay-http-url")
	bind(v, fs, KeyNumber, "number")
	bind(v, fs, KeyDeviceID, "device-id")
	bind(v, fs, KeySignalingKey, "signaling-key")
	bind(v, fs, KeyIdentityKey, "identity-key")
	bind(v, fs, KeySignedPrekey, "signed-prekey")
	bind(v, fs, KeyAuthUsername, "auth-username")
	bind(v, fs, KeyAuthPassword, "auth-password")
	bind(v, fs, KeyKeepAlivePath, "keepalive-path")
	bind(v, fs, KeyKeepAliveDisco, "keepalive-disconnect")
	bind(v, fs, KeyPingInterval, "ping-interval")
	bind(v, fs, KeyAckTimeout, "ack-timeout")
	bind(v, fs, KeyMongoURI, "mongo-uri")
	bind(v, fs, KeyMongoDatabase, "mongo-database")
	bind(v, fs, KeyRedisAddr, "redis-addr")
	bind(v, fs, KeyRedisPassword, "redis-password")
	bind(v, fs, KeyRedisDB, "redis-db")
	bind(v, fs, KeyDevelopment, "dev")
}

func bind(v *viper.Viper, fs *pflag.FlagSet, key, flag string) {
	_ = v.BindPFlag(key, fs.Lookup(flag))
}

// NewViper builds a viper instance that also reads E2ERECEIVER_-prefixed
// environment variables, dot-separated keys becoming underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("e2ereceiver")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves a Config from a bound viper instance. Hex-encoded key
// material that fails to decode is silently dropped to the zero value;
// for the identity keys, cmd/receiver then falls back to the stored pair
// (or a freshly minted one) rather than fail startup.
func Load(v *viper.Viper) Config {
	return Config{
		RelayURL:     v.GetString(KeyRelayURL),
		RelayHTTPURL: v.GetString(KeyRelayHTTPURL),

		Number:       v.GetString(KeyNumber),
		DeviceID:     v.GetUint32(KeyDeviceID),
		SignalingKey: decodeHex(v.GetString(KeySignalingKey)),
		IdentityKey:  decodeHex(v.GetString(KeyIdentityKey)),
		SignedPrekey: decodeHex(v.GetString(KeySignedPrekey)),

		AuthUsername: v.GetString(KeyAuthUsername),
		AuthPassword: v.GetString(KeyAuthPassword),

		KeepAlivePath:       v.GetString(KeyKeepAlivePath),
		KeepAliveDisconnect: v.GetBool(KeyKeepAliveDisco),
		PingInterval:        v.GetDuration(KeyPingInterval),
		AckTimeout:          v.GetDuration(KeyAckTimeout),

		MongoURI:      v.GetString(KeyMongoURI),
		MongoDatabase: v.GetString(KeyMongoDatabase),
		RedisAddr:     v.GetString(KeyRedisAddr),
		RedisPassword: v.GetString(KeyRedisPassword),
		RedisDB:       v.GetInt(KeyRedisDB),

		Development: v.GetBool(KeyDevelopment),
	}
}

func decodeHex(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
