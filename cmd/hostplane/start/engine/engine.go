package engine

import (
	"context"
	"fmt"
	"time"

	"hostplane/internal/audit"
	"hostplane/internal/cache"
	"hostplane/internal/cli"
	"hostplane/internal/common"
	"hostplane/internal/config"
	"hostplane/internal/database"
	"hostplane/internal/dispatch"
	"hostplane/internal/engine"
	"hostplane/internal/events"
	"hostplane/internal/identity"
	"hostplane/internal/notify"
	"hostplane/internal/policy"
	"hostplane/internal/signing"
	"hostplane/internal/store"
	"hostplane/internal/sweeper"
	"hostplane/internal/validate"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	flags.AddToCommand(Command)
}

var flags cli.Flags = cli.Flags{
	{
		Name:         "listen-addr",
		DefaultValue: "0.0.0.0:12345",
		Usage:        "specifies the address which the engine listens on",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "policy-path",
		DefaultValue: "./policies.yaml",
		Usage:        "specifies the path to the approval policy file",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "signing-secret",
		DefaultValue: "",
		Usage:        "specifies the master secret used to derive the decision signing key, requires at least 32 characters",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "jwt-secret",
		DefaultValue: "",
		Usage:        "specifies the secret used to validate caller tokens",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "sweep-interval",
		DefaultValue: sweeper.DefaultInterval,
		Usage:        "specifies the interval between expiry sweeps",
		Type:         cli.FlagTypeDuration,
	},
	{
		Name:         "execution-timeout",
		DefaultValue: dispatch.DefaultExecutionTimeout,
		Usage:        "specifies the maximum wall-clock duration of a single operation execution",
		Type:         cli.FlagTypeDuration,
	},
	{
		Name:         "sudo-path",
		DefaultValue: "/usr/bin/sudo",
		Usage:        "specifies the path to the sudo binary used by execution handlers",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "rate-limit",
		DefaultValue: 60,
		Usage:        "specifies the number of write requests allowed per user per minute",
		Type:         cli.FlagTypeInteger,
	},
	{
		Name:         "ip-allowlist",
		DefaultValue: []string{},
		Usage:        "when specified, restricts api access to the provided cidrs",
		Type:         cli.FlagTypeStringSlice,
	},
	{
		Name:         "redis-enabled",
		DefaultValue: false,
		Usage:        "when this flag is specified, redis backs the rate limiter",
		Type:         cli.FlagTypeBool,
	},
	{
		Name:         "mongo-enabled",
		DefaultValue: false,
		Usage:        "when this flag is specified, audit entries are written to mongodb",
		Type:         cli.FlagTypeBool,
	},
	{
		Name:         "nats-enabled",
		DefaultValue: false,
		Usage:        "when this flag is specified, transition events are published to nats",
		Type:         cli.FlagTypeBool,
	},
	{
		Name:         "slack-enabled",
		DefaultValue: false,
		Usage:        "when this flag is specified, notifications are sent to slack",
		Type:         cli.FlagTypeBool,
	},
	{
		Name:         "slack-bot-token",
		DefaultValue: "",
		Usage:        "the slack bot token to be used when slack is enabled",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "slack-channel-id",
		DefaultValue: "",
		Usage:        "the slack channel that receives notifications when slack is enabled",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "telegram-enabled",
		DefaultValue: false,
		Usage:        "when this flag is specified, notifications are sent to telegram",
		Type:         cli.FlagTypeBool,
	},
	{
		Name:         "telegram-bot-token",
		DefaultValue: "",
		Usage:        "the telegram bot token to be used when telegram is enabled",
		Type:         cli.FlagTypeString,
	},
	{
		Name:         "telegram-chat-id",
		DefaultValue: 0,
		Usage:        "the telegram chat that receives notifications when telegram is enabled",
		Type:         cli.FlagTypeInteger,
	},
}.
	Append(config.GetMysqlFlags()).
	Append(config.GetRedisFlags()).
	Append(config.GetMongoFlags()).
	Append(config.GetNatsFlags())

var Command = &cobra.Command{
	Use:     "engine",
	Aliases: []string{"e"},
	Short:   "Starts the approval engine",
	Long:    "Starts the approval engine which serves the request lifecycle api, the expiry sweeper and the execution dispatcher",
	PreRun: func(cmd *cobra.Command, args []string) {
		flags.BindViper(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceLogs := make(chan common.ServiceLog, 64)
		common.StartServiceLogLoop(serviceLogs)

		mysqlPort, err := common.ParsePort(viper.GetString(config.MysqlPort))
		if err != nil {
			return fmt.Errorf("failed to parse mysql port: %w", err)
		}
		databaseConnection, err := database.ConnectMysql(database.ConnectOpts{
			Host:     viper.GetString(config.MysqlHost),
			Port:     mysqlPort,
			Username: viper.GetString(config.MysqlUsername),
			Password: viper.GetString(config.MysqlPassword),
			Database: viper.GetString(config.MysqlDatabase),
		})
		if err != nil {
			return fmt.Errorf("failed to connect to mysql: %w", err)
		}
		defer databaseConnection.Close()
		if err := database.MigrateMysql(database.MigrateOpts{
			Connection:  databaseConnection,
			ServiceLogs: serviceLogs,
		}); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logrus.Infof("database initialised")

		requestStore, err := store.NewMysql(store.NewMysqlOpts{Db: databaseConnection})
		if err != nil {
			return fmt.Errorf("failed to initialise request store: %w", err)
		}
		roleProvider, err := identity.NewMysql(identity.NewMysqlOpts{Db: databaseConnection})
		if err != nil {
			return fmt.Errorf("failed to initialise role provider: %w", err)
		}

		var rateLimitCache cache.Cache = cache.NewMemory()
		if viper.GetBool("redis-enabled") {
			redisCache, err := cache.NewRedis(cache.NewRedisOpts{
				Addr:     viper.GetString(config.RedisAddr),
				Username: viper.GetString(config.RedisUsername),
				Password: viper.GetString(config.RedisPassword),
			})
			if err != nil {
				return fmt.Errorf("failed to initialise redis cache: %w", err)
			}
			rateLimitCache = redisCache
			logrus.Infof("redis client initialised")
		}

		var auditor audit.Recorder = audit.NewNoopRecorder()
		if viper.GetBool("mongo-enabled") {
			connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer connectCancel()
			mongoClient, err := mongo.Connect(connectCtx, options.Client().
				SetHosts(viper.GetStringSlice(config.MongoHosts)).
				SetAppName("hostplane").
				SetAuth(options.Credential{
					Username: viper.GetString(config.MongoUsername),
					Password: viper.GetString(config.MongoPassword),
				}))
			if err != nil {
				return fmt.Errorf("failed to connect to mongo: %w", err)
			}
			defer mongoClient.Disconnect(context.Background())
			auditor, err = audit.NewMongoRecorder(audit.NewMongoRecorderOpts{Client: mongoClient})
			if err != nil {
				return fmt.Errorf("failed to initialise audit recorder: %w", err)
			}
			logrus.Infof("mongo audit recorder initialised")
		}

		var publisher events.Publisher = events.NewNoopPublisher()
		if viper.GetBool("nats-enabled") {
			natsPublisher, err := events.NewNats(events.NewNatsOpts{
				Addr:     viper.GetString(config.NatsAddr),
				Username: viper.GetString(config.NatsUsername),
				Password: viper.GetString(config.NatsPassword),
			})
			if err != nil {
				return fmt.Errorf("failed to initialise nats publisher: %w", err)
			}
			defer natsPublisher.Close()
			publisher = natsPublisher
			logrus.Infof("nats publisher initialised")
		}

		var notifiers notify.Notifiers
		if viper.GetBool("slack-enabled") {
			slackNotifier, err := notify.NewSlackNotifier(notify.NewSlackNotifierOpts{
				BotToken:  viper.GetString("slack-bot-token"),
				ChannelId: viper.GetString("slack-channel-id"),
			})
			if err != nil {
				return fmt.Errorf("failed to initialise slack notifier: %w", err)
			}
			notifiers = append(notifiers, slackNotifier)
			logrus.Infof("slack notifier initialised")
		}
		if viper.GetBool("telegram-enabled") {
			telegramNotifier, err := notify.NewTelegramNotifier(notify.NewTelegramNotifierOpts{
				ApiToken: viper.GetString("telegram-bot-token"),
				ChatId:   int64(viper.GetInt("telegram-chat-id")),
			})
			if err != nil {
				return fmt.Errorf("failed to initialise telegram notifier: %w", err)
			}
			notifiers = append(notifiers, telegramNotifier)
			logrus.Infof("telegram notifier initialised")
		}

		policies, err := policy.LoadFromFile(viper.GetString("policy-path"))
		if err != nil {
			return fmt.Errorf("failed to load policies: %w", err)
		}
		signer, err := signing.New([]byte(viper.GetString("signing-secret")))
		if err != nil {
			return fmt.Errorf("failed to initialise decision signer: %w", err)
		}
		jwtSecret := viper.GetString("jwt-secret")
		if jwtSecret == "" {
			return fmt.Errorf("failed to receive a jwt secret")
		}

		validator := validate.New()
		handlers, err := dispatch.NewSystemHandlers(dispatch.SystemHandlersOpts{
			SudoPath:  viper.GetString("sudo-path"),
			Validator: validator,
		})
		if err != nil {
			return fmt.Errorf("failed to initialise execution handlers: %w", err)
		}
		dispatcher, err := dispatch.NewDispatcher(dispatch.NewDispatcherOpts{
			Store:            requestStore,
			Handlers:         handlers,
			Audit:            auditor,
			Events:           publisher,
			ExecutionTimeout: viper.GetDuration("execution-timeout"),
		})
		if err != nil {
			return fmt.Errorf("failed to initialise dispatcher: %w", err)
		}

		approvalEngine, err := engine.NewEngine(engine.NewEngineOpts{
			Store:      requestStore,
			Policies:   policies,
			Signer:     signer,
			Validator:  validator,
			Dispatcher: dispatcher,
			Roles:      roleProvider,
			Audit:      auditor,
			Events:     publisher,
			Notifiers:  notifiers,
		})
		if err != nil {
			return fmt.Errorf("failed to initialise approval engine: %w", err)
		}

		sweeperDone := make(chan common.Done)
		expirySweeper, err := sweeper.NewSweeper(sweeper.NewSweeperOpts{
			Engine:      approvalEngine,
			Interval:    viper.GetDuration("sweep-interval"),
			Done:        sweeperDone,
			ServiceLogs: serviceLogs,
		})
		if err != nil {
			return fmt.Errorf("failed to initialise expiry sweeper: %w", err)
		}
		go expirySweeper.Start()
		defer close(sweeperDone)

		logrus.Debugf("starting http server...")
		httpServerDone := make(chan common.Done)
		return engine.StartHttpServer(engine.StartHttpServerOpts{
			Addr:               viper.GetString("listen-addr"),
			Engine:             approvalEngine,
			Done:               httpServerDone,
			ServiceLogs:        serviceLogs,
			JwtSecret:          jwtSecret,
			Cache:              rateLimitCache,
			RateLimitPerMinute: int64(viper.GetInt("rate-limit")),
			IpAllowlist:        viper.GetStringSlice("ip-allowlist"),
			ReadinessChecks: []func() error{
				databaseConnection.Ping,
			},
		})
	},
}
