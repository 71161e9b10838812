// Command skj-judge generates a task batch from a seed, waits for a client
// to complete the TCP handshake and then judges its answers over UDP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skj-judge/skj-judge/cmd/skj-judge/config"
	grpchealth "github.com/skj-judge/skj-judge/cmd/skj-judge/grpc_health"
	"github.com/skj-judge/skj-judge/cmd/skj-judge/status"
	"github.com/skj-judge/skj-judge/cmd/skj-judge/version"
	"github.com/skj-judge/skj-judge/handshake"
	"github.com/skj-judge/skj-judge/judger"
	"github.com/skj-judge/skj-judge/problem"
	"github.com/skj-judge/skj-judge/types"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapgrpc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"google.golang.org/grpc/grpclog"
)

var logger *zap.Logger

func main() {
	conf := loadConf()
	if conf.Version {
		fmt.Println(version.Version)
		return
	}
	tasks, err := problem.Generate(conf.Seed.Uint64(), conf.TasksAmount)
	if err != nil {
		log.Fatalln("generate tasks failed ", err)
	}
	if conf.PrintTasks {
		if err := printTasks(os.Stdout, conf.Seed.Uint64(), tasks); err != nil {
			log.Fatalln("print tasks failed ", err)
		}
		return
	}

	initLogger(conf)
	defer logger.Sync()
	logConf(conf)
	logTasks(tasks)

	initMetrics(conf.EnableMetrics)
	tracker := status.NewTracker(tasks)

	servers := []initFunc{
		initHTTPServer(conf, tracker),
		initMonitorHTTPServer(conf),
		initGRPCServer(conf, tracker),
	}
	stops := []stopFunc{}
	for _, s := range servers {
		start, stop := s()
		if start != nil {
			go start()
		}
		if stop != nil {
			stops = append(stops, stop)
		}
	}

	// SIGINT / SIGTERM abort a stalled run
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	runErr := run(ctx, conf, tasks, tracker)
	cancel()

	logger.Info("Shutting Down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.TODO(), time.Second*3)
	defer shutdownCancel()

	var eg errgroup.Group
	for _, s := range stops {
		eg.Go(func() error {
			return s(shutdownCtx)
		})
	}
	logger.Info("Shutdown Finished", zap.Error(eg.Wait()))

	if runErr != nil {
		logger.Fatal("Run failed", zap.Error(runErr))
	}
}

// run executes the handshake and the exchange. Only transport errors and
// cancellation are returned, a client failing tasks is a normal outcome.
func run(ctx context.Context, conf *config.Config, tasks []types.Task, tracker *status.Tracker) error {
	l, err := handshake.Listen(conf.TCPAddr, handshake.Config{
		InitFlag: conf.InitFlag.Uint64(),
		Logger:   logger.Named("handshake"),
		Observer: func(a handshake.Attempt) {
			tracker.Attempt(a)
			attemptObserve(a)
		},
	})
	if err != nil {
		tracker.Abort(err)
		return err
	}
	defer l.Close()
	notifyReady()

	endpoint, err := l.Accept(ctx)
	if err != nil {
		tracker.Abort(err)
		return err
	}

	conn, err := judger.Dial(conf.UDPAddr, endpoint)
	if err != nil {
		tracker.Abort(err)
		return err
	}
	defer conn.Close()
	logger.Info("Exchange started", zap.Stringer("local", conn.LocalAddr()), zap.Stringer("client", endpoint))
	tracker.Exchange()

	j := judger.New(conn, judger.Config{
		Tasks:       tasks,
		TasksAmount: conf.TasksAmount,
		FinalFlag:   conf.FinalFlag.Uint64(),
		Logger:      logger.Named("judger"),
		Observer: func(r types.TaskResult) {
			tracker.Task(r)
			taskObserve(r)
		},
	})
	result, err := j.Run(ctx)
	tracker.Finish(result, err)
	resultObserve(result)
	if err != nil {
		return err
	}
	logger.Info("Run finished",
		zap.Int("passed", result.Passed),
		zap.Int("total", len(tasks)),
		zap.Bool("flagSent", result.FlagSent))
	return nil
}

// notifyReady tells systemd the handshake port is bound
func notifyReady() {
	ok, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	switch {
	case err != nil:
		logger.Warn("Notify systemd failed", zap.Error(err))
	case ok:
		logger.Debug("Notified systemd")
	}
}

// logConf logs the loaded config, leaving out the final flag and auth token
func logConf(conf *config.Config) {
	logger.Info("Config loaded",
		zap.String("tcpAddr", conf.TCPAddr),
		zap.String("udpAddr", conf.UDPAddr),
		zap.Uint64("seed", conf.Seed.Uint64()),
		zap.Uint64("initFlag", conf.InitFlag.Uint64()),
		zap.Int("tasksAmount", conf.TasksAmount),
		zap.String("httpAddr", conf.HTTPAddr),
		zap.Bool("enableGRPC", conf.EnableGRPC),
		zap.Bool("enableMetrics", conf.EnableMetrics),
		zap.Bool("enableDebug", conf.EnableDebug),
		zap.Bool("tokenAuth", conf.AuthToken != ""),
	)
}

func loadConf() *config.Config {
	var conf config.Config
	if err := conf.Load(); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalln("load config failed ", err)
	}
	if err := conf.Validate(); err != nil {
		log.Fatalln("invalid config ", err)
	}
	return &conf
}

type (
	stopFunc func(ctx context.Context) error
	initFunc func() (start func(), cleanUp stopFunc)
)

func initHTTPServer(conf *config.Config, tracker *status.Tracker) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		if conf.HTTPAddr == "" {
			return nil, nil
		}
		r := initHTTPMux(conf, tracker)
		srv := http.Server{
			Addr:    conf.HTTPAddr,
			Handler: r,
		}

		return func() {
				lis, err := net.Listen("tcp", conf.HTTPAddr)
				if err != nil {
					logger.Error("Http server listen failed", zap.Error(err))
					return
				}
				logger.Info("Starting http server", zap.String("addr", conf.HTTPAddr))
				if err := srv.Serve(lis); errors.Is(err, http.ErrServerClosed) {
					logger.Info("Http server stopped", zap.Error(err))
				} else {
					logger.Error("Http server stopped", zap.Error(err))
				}
			}, func(ctx context.Context) error {
				logger.Info("Http server shutting down")
				return srv.Shutdown(ctx)
			}
	}
}

func initMonitorHTTPServer(conf *config.Config) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		mr := initMonitorHTTPMux(conf)
		if mr == nil {
			return nil, nil
		}
		msrv := http.Server{
			Addr:    conf.MonitorAddr,
			Handler: mr,
		}
		return func() {
				lis, err := net.Listen("tcp", conf.MonitorAddr)
				if err != nil {
					logger.Error("Monitoring http listen failed", zap.Error(err))
					return
				}
				logger.Info("Starting monitoring http server", zap.String("addr", conf.MonitorAddr))
				logger.Info("Monitoring http server stopped", zap.Error(msrv.Serve(lis)))
			}, func(ctx context.Context) error {
				logger.Info("Monitoring http server shutdown")
				return msrv.Shutdown(ctx)
			}
	}
}

func initGRPCServer(conf *config.Config, tracker *status.Tracker) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		if !conf.EnableGRPC {
			return nil, nil
		}
		grpclog.SetLoggerV2(zapgrpc.NewLogger(logger))

		var prom *grpc_prometheus.ServerMetrics
		if conf.EnableMetrics {
			prom = grpc_prometheus.NewServerMetrics(grpc_prometheus.WithServerHandlingTimeHistogram())
			prometheus.MustRegister(prom)
		}
		grpcServer := grpchealth.New(grpchealth.Config{
			AuthToken: conf.AuthToken,
			Logger:    logger.Named("grpc"),
			Metrics:   prom,
		}, tracker)

		return func() {
				lis, err := net.Listen("tcp", conf.GRPCAddr)
				if err != nil {
					logger.Error("gRPC listen failed: ", zap.Error(err))
					return
				}
				logger.Info("Starting gRPC server", zap.String("addr", conf.GRPCAddr))
				logger.Info("gRPC server stopped", zap.Error(grpcServer.Serve(lis)))
			}, func(ctx context.Context) error {
				grpcServer.GracefulStop()
				logger.Info("GRPC server shutdown")
				return nil
			}
	}
}

func initLogger(conf *config.Config) {
	if conf.Silent {
		logger = zap.NewNop()
		return
	}

	var err error
	if conf.Release {
		logger, err = zap.NewProduction()
	} else {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if term.IsTerminal(int(os.Stderr.Fd())) {
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		if !conf.EnableDebug {
			config.Level.SetLevel(zap.InfoLevel)
		}
		logger, err = config.Build()
	}
	if err != nil {
		log.Fatalln("init logger failed ", err)
	}
}

func initHTTPMux(conf *config.Config, tracker *status.Tracker) http.Handler {
	if conf.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(ginzap.Ginzap(logger, "", false))
	r.Use(ginzap.RecoveryWithZap(logger, true))

	if conf.EnableMetrics {
		initGinMetrics(r)
	}

	r.GET("/version", handleVersion)

	if conf.AuthToken != "" {
		r.Use(tokenAuth(conf.AuthToken))
		logger.Info("Attach token auth")
	}
	status.NewStatusHandle(tracker).Register(r)
	return r
}

func initMonitorHTTPMux(conf *config.Config) http.Handler {
	if !conf.EnableMetrics && !conf.EnableDebug {
		return nil
	}
	mux := http.NewServeMux()
	if conf.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	if conf.EnableDebug {
		initDebugRoute(mux)
	}
	return mux
}

func initDebugRoute(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func initGinMetrics(r *gin.Engine) {
	p := ginprometheus.NewWithConfig(ginprometheus.Config{
		Subsystem:          "gin",
		DisableBodyReading: true,
	})
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		return c.FullPath()
	}
	r.Use(p.HandlerFunc())
}

func handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

func tokenAuth(token string) gin.HandlerFunc {
	const bearer = "Bearer "
	return func(c *gin.Context) {
		reqToken := c.GetHeader("Authorization")
		if strings.HasPrefix(reqToken, bearer) && reqToken[len(bearer):] == token {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}
