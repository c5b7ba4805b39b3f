package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/credential-store/api"
	"github.com/ruteri/credential-store/common"
	"github.com/ruteri/credential-store/config"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		RequireAdminAuth:         cCtx.Bool(RequireAdminAuthFlag.Name),
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// StoreParams collects the store and administrator settings for config.New.
func StoreParams(cCtx *cli.Context) config.Params {
	return config.Params{
		StoreURI:      cCtx.String(StoreURIFlag.Name),
		AdminName:     cCtx.String(AdminNameFlag.Name),
		AdminPassword: cCtx.String(AdminPasswordFlag.Name),
		Ephemeral:     cCtx.Bool(EphemeralFlag.Name),
		CallTimeout:   cCtx.Duration(CallTimeoutFlag.Name),
		MirrorURIs:    cCtx.StringSlice(MirrorURIFlag.Name),
	}
}

var StoreURIFlag = &cli.StringFlag{
	Name:    "store-uri",
	Value:   "http://127.0.0.1:2379",
	EnvVars: []string{"ETCD_URI"},
	Usage:   "location of the key-value store (http, https, etcd, etcd+srv, vault, s3, ipfs, bolt, file or memory URI)",
}

var MirrorURIFlag = &cli.StringSliceFlag{
	Name:  "mirror-uri",
	Usage: "additional store that receives every write and serves reads when the primary is unreachable, may be repeated",
}

var AdminNameFlag = &cli.StringFlag{
	Name:    "admin-name",
	Value:   "admin",
	EnvVars: []string{"ADMIN_NAME"},
	Usage:   "name of the administrator created when the store is first bootstrapped",
}

var AdminPasswordFlag = &cli.StringFlag{
	Name:    "admin-password",
	EnvVars: []string{"ADMIN_PASSWD"},
	Usage:   "password of the bootstrap administrator",
}

var EphemeralFlag = &cli.BoolFlag{
	Name:    "ephemeral",
	Value:   false,
	EnvVars: []string{"CREDSTORE_EPHEMERAL"},
	Usage:   "skip namespace bootstrap, for stores that are provisioned externally",
}

var CallTimeoutFlag = &cli.DurationFlag{
	Name:  "call-timeout",
	Value: config.DefaultCallTimeout,
	Usage: "deadline for each call against the store",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var RequireAdminAuthFlag = &cli.BoolFlag{
	Name:  "require-admin-auth",
	Value: true,
	Usage: "require administrator basic auth on the user management endpoints",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var StoreFlags = []cli.Flag{
	StoreURIFlag,
	MirrorURIFlag,
	AdminNameFlag,
	AdminPasswordFlag,
	EphemeralFlag,
	CallTimeoutFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	RequireAdminAuthFlag,
	PprofFlag,
	DrainSecondsFlag,
}
