package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/lvdashuaibi/votecore/config"
	"github.com/lvdashuaibi/votecore/internal/api/graph"
	"github.com/lvdashuaibi/votecore/internal/api/rest"
	"github.com/lvdashuaibi/votecore/internal/archive"
	"github.com/lvdashuaibi/votecore/internal/codec"
	intkafka "github.com/lvdashuaibi/votecore/internal/kafka"
	"github.com/lvdashuaibi/votecore/internal/lock"
	"github.com/lvdashuaibi/votecore/internal/logging"
	"github.com/lvdashuaibi/votecore/internal/metrics"
	"github.com/lvdashuaibi/votecore/internal/repository"
	"github.com/lvdashuaibi/votecore/internal/service"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	instanceID = flag.Int("instance", 1, "实例ID，用于区分多个实例")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	logging.Bootstrap(cfg.Log.Level, cfg.Log.Format)
	log := logging.Log.WithField("instance", *instanceID)
	log.Info("配置加载成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 存储
	repo, err := repository.Open(cfg.Storage)
	if err != nil {
		log.Fatalf("初始化存储失败: %v", err)
	}
	defer repo.Close()
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("初始化数据表失败: %v", err)
	}
	log.WithField("driver", cfg.Storage.Driver).Info("存储初始化成功")

	// 结果缓存
	var (
		cache        service.ResultsCache
		resultsCache *repository.ResultCache
	)
	if cfg.Redis.DataAddress != "" {
		resultsCache, err = repository.NewResultCache(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("初始化结果缓存失败: %v", err)
		}
		defer resultsCache.Close()
		cache = resultsCache
		log.Info("Redis结果缓存初始化成功")
	} else {
		log.Warn("未配置 redis.data_address，结果不做缓存")
	}

	// 排期锁
	scheduleLock, err := lock.New(cfg)
	if err != nil {
		log.Fatalf("初始化分布式锁失败: %v", err)
	}
	if scheduleLock != nil {
		defer scheduleLock.Close()
	}
	log.WithField("backend", cfg.Lock.Backend).Info("分布式锁初始化成功")

	ballotCodec, err := codec.NewFeistel(cfg.Ballot.Key, cfg.Ballot.Rounds)
	if err != nil {
		log.Fatalf("初始化选票编码失败: %v", err)
	}

	// 结果归档
	var archiver service.Archiver
	if cfg.Archive.Enabled {
		s3Archiver, err := archive.NewS3Archiver(ctx, cfg.Archive)
		if err != nil {
			log.Fatalf("初始化结果归档失败: %v", err)
		}
		archiver = s3Archiver
		log.WithField("bucket", cfg.Archive.Bucket).Info("S3结果归档初始化成功")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	results := service.NewResultsService(repo, repo, ballotCodec, cache, archiver, m)

	// 投票事件
	var publisher service.EventPublisher
	var consumer *intkafka.Consumer
	if cfg.Kafka.Enabled {
		producer := intkafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer

		consumer = intkafka.NewConsumer(cfg.Kafka)
		consumer.StartConsuming(results.HandleBallotCast)
		log.WithField("topic", cfg.Kafka.Topic).Info("Kafka生产者与消费者已启动")
	}

	scheduler := service.NewElectionScheduler(repo, scheduleLock, cfg.Lock)
	candidates := service.NewCandidateRegistry(repo, repo)
	ledger := service.NewVoteLedger(repo, repo, repo, ballotCodec, publisher, results, m)

	// HTTP
	gqlServer := graph.NewServer(graph.Services{
		Scheduler: scheduler,
		Registry:  candidates,
		Ledger:    ledger,
		Results:   results,
	}, cfg.GraphQL, cfg.Server.AdminToken)

	engine := rest.NewRouter(cfg.Server.GinMode)
	engine.POST(gqlServer.Path(), gin.WrapH(gqlServer.Handler()))
	engine.GET(gqlServer.Path(), gin.WrapH(gqlServer.Playground()))
	rest.NewAdminController(scheduler, candidates, results).RegisterRoutes(engine, cfg.Server.AdminToken)

	checks := map[string]rest.Pinger{"storage": repo}
	if resultsCache != nil {
		checks["redis"] = resultsCache
	}
	rest.RegisterHealth(engine, registry, checks)

	// 支持同机多实例
	port := cfg.Server.Port + *instanceID - 1
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("启动HTTP服务失败: %v", err)
		}
	}()
	log.WithFields(logrus.Fields{
		"port":    port,
		"graphql": gqlServer.Path(),
	}).Info("投票核心服务已启动")

	<-ctx.Done()
	log.Info("正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("关闭HTTP服务失败: %v", err)
	}
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			log.Errorf("关闭Kafka消费者失败: %v", err)
		}
	}
}
