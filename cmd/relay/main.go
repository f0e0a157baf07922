package main

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"e2ereceiver/internal/log"
	"e2ereceiver/internal/relayserver"
	redissvc "e2ereceiver/internal/service/redis"
)

func main() {
	v := viper.New()
	v.SetEnvPrefix("e2erelay")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "e2erelay",
		Short: "Local dev/test relay implementing the receiver's wire contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}
	bindFlags(root.Flags(), v)

	if err := root.Execute(); err != nil {
		log.Fatal("relay: fatal", zap.Error(err))
	}
}

func bindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.String("listen-addr", ":9090", "HTTP/websocket listen address")
	fs.String("redis-addr", "localhost:6379", "redis server address")
	fs.String("redis-password", "", "redis password")
	fs.Int("redis-db", 0, "redis logical database index")
	fs.Bool("dev", false, "use a development logger")

	_ = v.BindPFlag("listen-addr", fs.Lookup("listen-addr"))
	_ = v.BindPFlag("redis-addr", fs.Lookup("redis-addr"))
	_ = v.BindPFlag("redis-password", fs.Lookup("redis-password"))
	_ = v.BindPFlag("redis-db", fs.Lookup("redis-db"))
	_ = v.BindPFlag("dev", fs.Lookup("dev"))
}

func run(v *viper.Viper) error {
	if v.GetBool("dev") {
		log.SetDevelopment()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     v.GetString("redis-addr"),
		Password: v.GetString("redis-password"),
		DB:       v.GetInt("redis-db"),
	})
	redisService := redissvc.NewRedis(rdb)

	srv := relayserver.New(redisService)
	addr := v.GetString("listen-addr")
	log.Info("relay: listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		return fmt.Errorf("relay: listen: %w", err)
	}
	return nil
}
