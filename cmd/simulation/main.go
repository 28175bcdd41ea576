// 文件: cmd/simulation/main.go
// 行情引擎模拟运行入口
//
// 组装完整管线:
//   模拟器(GBM) -> 行情处理器(订单簿) -> 动量策略 -> 信号分发
// 可选外部组件 (通过环境变量开启，默认全部关闭、纯本地运行):
//   MD_NATS_URL      信号发布到 NATS (不设则打日志)
//   MD_REDIS_ADDR    最优报价写入 Redis
//   MD_KAFKA_BROKERS 行情改走 Kafka 往返: 模拟器发布、消费组拉回 (逗号分隔)
//   MD_MYSQL_DSN     NATS 信号批量落库 MySQL (需同时设 MD_NATS_URL)

package main

import (
	"context"
	"log"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"mdx.com/pkg/feed"
	"mdx.com/pkg/kafka"
	"mdx.com/pkg/mdata"
	"mdx.com/pkg/quote"
	"mdx.com/pkg/signal"
	"mdx.com/pkg/strategy"
	"mdx.com/pkg/workerpool"
)

// logPublisher 本地兜底发布器: 没配 NATS 时把信号打到日志
type logPublisher struct{}

func (logPublisher) PublishSignal(s *signal.Signal) error {
	log.Printf("[Signal] %s %s @ %.2f (强度 %.2f)", s.Symbol, s.Kind, s.Price, s.Strength)
	return nil
}

func (logPublisher) Close() error { return nil }

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("==============================================")
	log.Println("  行情引擎模拟运行")
	log.Println("==============================================")

	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	// ========== 行情侧 ==========
	simu := feed.NewSimulator(feed.SimulatorConfig{
		Symbols:    symbols,
		Exchange:   "sim",
		StartPrice: 65000,
		Drift:      0.05,
		Volatility: 0.8,
		SpreadBps:  2,
		Interval:   time.Millisecond,
	})

	handlerCfg := mdata.DefaultHandlerConfig()
	handlerCfg.Release = simu.Pool().Put
	handler := mdata.NewMarketDataHandler(handlerCfg)

	simCh, err := handler.AddExchange("sim")
	if err != nil {
		log.Fatalf("add exchange: %v", err)
	}

	// ========== 信号链路 ==========
	var pub signal.Publisher = logPublisher{}
	natsURL := os.Getenv("MD_NATS_URL")
	if natsURL != "" {
		np, err := signal.NewNatsPublisher(natsURL)
		if err != nil {
			log.Fatalf("nats publisher: %v", err)
		}
		pub = np
		log.Printf("[Main] 信号发布到 NATS: %s", natsURL)
	}

	dispatcher := signal.NewDispatcher(signal.DefaultDispatcherConfig(), pub)
	dispatcher.Start()

	momentum := strategy.NewMomentum(strategy.MomentumConfig{
		ShortAlpha: 0.3,
		LongAlpha:  0.05,
		Threshold:  0.002,
		Cooldown:   time.Second,
		Exchange:   "sim",
	}, dispatcher)

	for _, sym := range symbols {
		if err := handler.Subscribe(sym, momentum.OnUpdate); err != nil {
			log.Fatalf("subscribe %s: %v", sym, err)
		}
	}

	// ========== 可选: 信号落库 ==========
	var dbWriter *signal.DBWriter
	if dsn := os.Getenv("MD_MYSQL_DSN"); dsn != "" && natsURL != "" {
		db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatalf("open mysql: %v", err)
		}
		repo := signal.NewRepo(db)
		if err := repo.AutoMigrate(); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		dbWriter, err = signal.NewDBWriter(signal.DefaultDBWriterConfig(), repo, natsURL)
		if err != nil {
			log.Fatalf("db writer: %v", err)
		}
		if err := dbWriter.Start(); err != nil {
			log.Fatalf("start db writer: %v", err)
		}
	}

	// ========== 可选: Redis 报价缓存 ==========
	var cacher *quote.Cacher
	if addr := os.Getenv("MD_REDIS_ADDR"); addr != "" {
		cacher = quote.NewCacher(addr, quote.DefaultCacherConfig())
		cacher.Start()
		log.Printf("[Main] 报价缓存到 Redis: %s", addr)
	}

	// ========== 可选: Kafka 行情链路 ==========
	// 设了 broker 则行情走 Kafka 往返: 模拟器发布到 topic，消费组拉回处理器;
	// 不设则模拟器直连处理器的投递通道。
	sink := func(u *mdata.MarketUpdate) { simCh <- u }
	var (
		kfeed    *feed.KafkaFeed
		producer *kafka.Producer
	)
	if brokers := os.Getenv("MD_KAFKA_BROKERS"); brokers != "" {
		list := strings.Split(brokers, ",")
		producer, err = kafka.NewProducer(kafka.DefaultProducerConfig(list))
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
		kfeed, err = feed.NewKafkaFeed(feed.DefaultKafkaFeedConfig(list), handler)
		if err != nil {
			log.Fatalf("kafka feed: %v", err)
		}
		updatePool := simu.Pool()
		sink = func(u *mdata.MarketUpdate) {
			if err := producer.SendJSON(feed.TopicUpdates, u.Symbol, u); err != nil {
				log.Printf("[Main] 行情发布失败: %v", err)
			}
			updatePool.Put(u) // 已序列化，立即回池
		}
		log.Printf("[Main] 行情经 Kafka 往返: %s", brokers)
	}

	// ========== 启动 ==========
	if err := handler.Start(); err != nil {
		log.Fatalf("start handler: %v", err)
	}
	if kfeed != nil {
		kfeed.Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go simu.Run(ctx, sink)

	// 后台任务池: 报价快照高优先级，周期报表低优先级
	pool := workerpool.New(workerpool.Config{Workers: 2})
	reportTicker := time.NewTicker(5 * time.Second)
	defer reportTicker.Stop()

	go func() {
		for range reportTicker.C {
			for _, sym := range symbols {
				sym := sym
				pool.Submit(10, func() (any, error) {
					if snap, ok := handler.GetOrderBook(sym); ok && cacher != nil {
						cacher.Offer(snap)
					}
					return nil, nil
				})
			}
			pool.Submit(1, func() (any, error) {
				m := handler.GetMetrics()
				log.Printf("[Main] 吞吐 %.0f msg/s | 处理 %d | 丢弃 %d | 争用 %d",
					m.ThroughputMsgS, m.Processed, m.Dropped, m.Contentions)
				return nil, nil
			})
		}
	}()

	// ========== 等待退出信号 ==========
	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[Main] 收到退出信号，开始优雅停机...")

	cancel() // 停模拟器
	if producer != nil {
		producer.Close() // 刷出尾批
	}
	if kfeed != nil {
		kfeed.Stop()
	}
	handler.Stop()
	dispatcher.Stop()
	if cacher != nil {
		cacher.Stop()
	}
	if dbWriter != nil {
		dbWriter.Stop()
	}
	pool.Stop()
	pub.Close()

	// ========== 收尾报告 ==========
	m := handler.GetMetrics()
	log.Println("==============================================")
	log.Printf("  处理: %d 笔  丢弃: %d 笔", m.Processed, m.Dropped)
	log.Printf("  锁争用: %d 次  累计锁等待: %v", m.Contentions, time.Duration(m.LockWaitNs))
	for name, ex := range m.Exchanges {
		log.Printf("  [%s] %d 笔, 平均延迟 %.1fµs", name, ex.Messages, ex.AvgLatencyUs)
	}
	ds := dispatcher.Stats()
	log.Printf("  信号: 发布 %d  拒绝 %d  失败 %d", ds.Published, ds.Rejected, ds.Errors)
	ps := simu.Pool().Stats()
	log.Printf("  更新池: 分配 %d  峰值 %d  降级 %d", ps.TotalAllocs, ps.PeakAllocs, ps.Failures)
	log.Println("==============================================")
}
