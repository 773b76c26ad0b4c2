// The worker binary runs everything that is not request/response: topic
// consumers, the consumer supervisor, the abandoned-reservation reaper and
// a broker connectivity probe.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagDatabaseDSN   = "db-dsn"
	flagRedisURL      = "redis-url"
	flagBrokerURL     = "broker-url"
	flagConsumerGroup = "group"
	flagOtelURL       = "otel-collector-url"
	flagEnv           = "env"
	flagSMTPHost      = "smtp-host"
	flagSMTPPort      = "smtp-port"
	flagSMTPUsername  = "smtp-username"
	flagSMTPPassword  = "smtp-password"
	flagSMTPSender    = "smtp-sender"

	configKeyDatabaseDSN   = "db_dsn"
	configKeyRedisURL      = "redis_url"
	configKeyBrokerURL     = "broker_url"
	configKeyConsumerGroup = "group"
	configKeyOtelURL       = "otel_collector_url"
	configKeyEnv           = "env"
	configKeySMTPHost      = "smtp_host"
	configKeySMTPPort      = "smtp_port"
	configKeySMTPUsername  = "smtp_username"
	configKeySMTPPassword  = "smtp_password"
	configKeySMTPSender    = "smtp_sender"

	defaultConsumerGroup = "cinema-consumer-group"
	defaultHoldMinutes   = 15
)

type runtimeConfig struct {
	DatabaseDSN   string
	RedisURL      string
	BrokerURL     string
	ConsumerGroup string
	OtelURL       string
	Env           string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPSender   string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Cinema reservation background worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return loadConfig(cmd, cfg)
		},
	}

	cmd.PersistentFlags().String(flagDatabaseDSN, "", "PostgreSQL DSN")
	cmd.PersistentFlags().String(flagRedisURL, "", "Redis URL")
	cmd.PersistentFlags().String(flagBrokerURL, "", "Kafka REST proxy URL")
	cmd.PersistentFlags().String(flagConsumerGroup, defaultConsumerGroup, "Consumer group name")
	cmd.PersistentFlags().String(flagOtelURL, "", "OpenTelemetry collector URL (empty disables telemetry)")
	cmd.PersistentFlags().String(flagEnv, "dev", "Environment (dev|staging|prod)")
	cmd.PersistentFlags().String(flagSMTPHost, "sandbox.smtp.mailtrap.io", "SMTP host")
	cmd.PersistentFlags().Int(flagSMTPPort, 2525, "SMTP port")
	cmd.PersistentFlags().String(flagSMTPUsername, "", "SMTP username")
	cmd.PersistentFlags().String(flagSMTPPassword, "", "SMTP password")
	cmd.PersistentFlags().String(flagSMTPSender, "CineTick <no-reply@cinetick.example.com>", "SMTP sender")

	cmd.AddCommand(
		newConsumeCommand(cfg),
		newSuperviseCommand(cfg),
		newReapCommand(cfg),
		newPingCommand(cfg),
	)

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseDSN:   "DATABASE_DSN",
		configKeyRedisURL:      "REDIS_URL",
		configKeyBrokerURL:     "KAFKA_REST_PROXY_URL",
		configKeyConsumerGroup: "KAFKA_CONSUMER_GROUP",
		configKeyOtelURL:       "OTEL_COLLECTOR_URL",
		configKeyEnv:           "ENV",
		configKeySMTPHost:      "SMTP_HOST",
		configKeySMTPPort:      "SMTP_PORT",
		configKeySMTPUsername:  "SMTP_USERNAME",
		configKeySMTPPassword:  "SMTP_PASSWORD",
		configKeySMTPSender:    "SMTP_SENDER",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	flags := map[string]string{
		configKeyDatabaseDSN:   flagDatabaseDSN,
		configKeyRedisURL:      flagRedisURL,
		configKeyBrokerURL:     flagBrokerURL,
		configKeyConsumerGroup: flagConsumerGroup,
		configKeyOtelURL:       flagOtelURL,
		configKeyEnv:           flagEnv,
		configKeySMTPHost:      flagSMTPHost,
		configKeySMTPPort:      flagSMTPPort,
		configKeySMTPUsername:  flagSMTPUsername,
		configKeySMTPPassword:  flagSMTPPassword,
		configKeySMTPSender:    flagSMTPSender,
	}

	for key, flag := range flags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseDSN = viper.GetString(configKeyDatabaseDSN)
	cfg.RedisURL = viper.GetString(configKeyRedisURL)
	cfg.BrokerURL = viper.GetString(configKeyBrokerURL)
	cfg.ConsumerGroup = viper.GetString(configKeyConsumerGroup)
	cfg.OtelURL = viper.GetString(configKeyOtelURL)
	cfg.Env = viper.GetString(configKeyEnv)
	cfg.SMTPHost = viper.GetString(configKeySMTPHost)
	cfg.SMTPPort = viper.GetInt(configKeySMTPPort)
	cfg.SMTPUsername = viper.GetString(configKeySMTPUsername)
	cfg.SMTPPassword = viper.GetString(configKeySMTPPassword)
	cfg.SMTPSender = viper.GetString(configKeySMTPSender)

	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = defaultConsumerGroup
	}
	if cfg.BrokerURL == "" {
		return fmt.Errorf("broker url is required")
	}

	return nil
}
