package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"e2ereceiver/internal/config"
	"e2ereceiver/internal/cryptographic/dh"
	"e2ereceiver/internal/cryptographic/encryption"
	"e2ereceiver/internal/events"
	"e2ereceiver/internal/keepalive"
	"e2ereceiver/internal/log"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/receiver"
	"e2ereceiver/internal/relayclient"
	"e2ereceiver/internal/repository/group"
	"e2ereceiver/internal/repository/identity"
	"e2ereceiver/internal/repository/user"
	"e2ereceiver/internal/service/blocklist"
	redissvc "e2ereceiver/internal/service/redis"
	"e2ereceiver/internal/service/sessioncache"
	"e2ereceiver/internal/session"
)

func main() {
	v := config.NewViper()

	root := &cobra.Command{
		Use:   "e2ereceiver",
		Short: "Receive-only client for the E2EE messaging relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(config.Load(v))
		},
	}
	config.BindFlags(root.Flags(), v)

	if err := root.Execute(); err != nil {
		log.Fatal("receiver: fatal", zap.Error(err))
	}
}

func run(cfg config.Config) error {
	if cfg.Development {
		log.SetDevelopment()
	}
	if cfg.Number == "" {
		return errors.New("receiver: --number is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	cancel()
	if err != nil {
		return errors.Wrap(err, "receiver: connect mongo")
	}
	db := mongoClient.Database(cfg.MongoDatabase)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	redisService := redissvc.NewRedis(rdb)

	roster := group.NewGroupRepo(db)
	identities := identity.NewIdentityRepo(db)
	sessions := sessioncache.NewSessionCache(redisService)
	blocked := blocklist.NewBlocklist(redisService)
	relay := relayclient.New(cfg.RelayHTTPURL, cfg.AuthUsername, cfg.AuthPassword)
	users := user.NewUserRepo(db)

	ikPriv, ikPub, spkPriv, spkPub, err := provisionIdentity(context.Background(), users, cfg)
	if err != nil {
		return errors.Wrap(err, "receiver: provision identity")
	}

	sessionManager := session.NewManager(sessions, identities, ikPriv, ikPub, spkPriv, spkPub)

	bus := events.NewBus()
	identityCfg := receiver.Identity{
		Number:       cfg.Number,
		DeviceID:     cfg.DeviceID,
		SignalingKey: cfg.SignalingKey,
	}
	kaConfig := keepalive.Config{
		Path:       cfg.KeepAlivePath,
		Disconnect: cfg.KeepAliveDisconnect,
		PingInterval: cfg.PingInterval,
		AckTimeout:   cfg.AckTimeout,
	}

	r := receiver.New(identityCfg, cfg.RelayURL, kaConfig, bus, sessionManager, roster, blocked, relay, decryptBodyFunc(cfg.SignalingKey))

	if err := r.Connect(context.Background()); err != nil {
		return errors.Wrap(err, "receiver: connect")
	}

	ui := newConsole(bus, r)
	go ui.run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	r.Close()
	ui.stop()
	return nil
}

// decryptBodyFunc implements the signaling-key decrypt step of §4.4 step 1:
// an AES-GCM layer wrapping every inbound PUT /messages body.
func decryptBodyFunc(signalingKey []byte) func([]byte) ([]byte, error) {
	return func(body []byte) ([]byte, error) {
		return encryption.AEADDecrypt(signalingKey, body, nil)
	}
}

// loadOrGenerateKeyPair derives a public key from a configured private key,
// or generates a fresh pair when none was configured (§1 treats key
// provisioning as an out-of-scope external collaborator).
func loadOrGenerateKeyPair(priv []byte) (privOut, pubOut [32]byte, err error) {
	if len(priv) == 32 {
		copy(privOut[:], priv)
		pubOut = dh.PublicFromPrivate(privOut)
		return privOut, pubOut, nil
	}
	return session.NewIdentityKeyPair()
}

// provisionIdentity resolves this device's long-term identity key and
// signed prekey. A value configured via --identity-key/--signed-prekey
// always wins; otherwise it loads the keypair mongo has on file for
// cfg.Number, and failing that mints a fresh one and persists it, so a
// bare restart does not mint a new identity underneath existing sessions.
func provisionIdentity(ctx context.Context, users *user.UserRepo, cfg config.Config) (ikPriv, ikPub, spkPriv, spkPub [32]byte, err error) {
	if len(cfg.IdentityKey) == 32 && len(cfg.SignedPrekey) == 32 {
		ikPriv, ikPub, err = loadOrGenerateKeyPair(cfg.IdentityKey)
		if err != nil {
			return
		}
		spkPriv, spkPub, err = loadOrGenerateKeyPair(cfg.SignedPrekey)
		return
	}

	existing, getErr := users.GetByName(ctx, cfg.Number)
	if getErr != nil {
		err = errors.Wrap(getErr, "load identity")
		return
	}
	if existing != nil {
		if len(existing.IKPriv) != 32 || len(existing.SPKPriv) != 32 {
			err = errors.Errorf("stored identity for %s is malformed", cfg.Number)
			return
		}
		copy(ikPriv[:], existing.IKPriv)
		copy(spkPriv[:], existing.SPKPriv)
		ikPub = dh.PublicFromPrivate(ikPriv)
		spkPub = dh.PublicFromPrivate(spkPriv)
		return
	}

	if ikPriv, ikPub, err = session.NewIdentityKeyPair(); err != nil {
		return
	}
	if spkPriv, spkPub, err = session.NewIdentityKeyPair(); err != nil {
		return
	}
	_, err = users.Create(ctx, &model.User{Name: cfg.Number, IKPriv: ikPriv[:], SPKPriv: spkPriv[:]})
	return
}
