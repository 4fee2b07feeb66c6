package app

import (
	"context"
	"fmt"

	"ethpulse/internal/collector"
	"ethpulse/internal/config"
	"ethpulse/internal/labeler"
	"ethpulse/internal/logger"
	"ethpulse/internal/retention"
	"ethpulse/internal/scheduler"
	"ethpulse/internal/store/gormstore"
	apihttp "ethpulse/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：采集循环、标注循环、保留策略与 HTTP 服务。
type App struct {
	cfg       *config.Config
	store     *gormstore.GormStore
	collector *collector.Collector
	labeler   *labeler.Labeler
	retention *retention.Manager
	http      *apihttp.Server
	jobs      []job
	Summary   *StartupSummary
}

type job struct {
	sched *scheduler.IntervalScheduler
	task  scheduler.Task
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return NewAppBuilder(cfg).Build(context.Background())
}

// Run 启动 HTTP 服务与全部后台任务，直到 ctx 取消；退出时关闭存储。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	for _, j := range a.jobs {
		j := j
		group.Go(func() error {
			return j.sched.Run(ctx, j.task)
		})
	}
	err := group.Wait()
	logger.Infof("[app] stopped: %v", err)
	return err
}

// Close releases the store. Safe to call more than once.
func (a *App) Close() {
	if a == nil || a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		logger.Warnf("[app] close store: %v", err)
	}
	a.store = nil
}

func (a *App) Collector() *collector.Collector { return a.collector }

func (a *App) Server() *apihttp.Server { return a.http }
