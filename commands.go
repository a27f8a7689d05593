package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/any-hub/dirkv/internal/cache"
	"github.com/any-hub/dirkv/internal/codec"
	"github.com/any-hub/dirkv/internal/config"
	"github.com/any-hub/dirkv/internal/logging"
	"github.com/any-hub/dirkv/internal/server"
	"github.com/any-hub/dirkv/internal/server/routes"
	"github.com/any-hub/dirkv/internal/version"
)

// runtimeEnv 聚合一次命令所需的配置、日志与存储实例。
type runtimeEnv struct {
	configPath string
	cfg        *config.Config
	logger     *logrus.Logger
	store      cache.Store
	codec      codec.Codec
}

// loadEnv 按“配置 → 日志 → 目录缓存”顺序初始化；quiet 时未配置日志文件的输出改写到 stderr，
// 避免污染 get 等命令的 stdout。
func loadEnv(configPath string, quiet bool) (*runtimeEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fail(1, fmt.Errorf("加载配置失败: %w", err))
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return nil, fail(1, fmt.Errorf("初始化日志失败: %w", err))
	}
	if quiet && cfg.Global.LogFilePath == "" {
		logger.SetOutput(stdErr)
	}

	store, err := cache.NewStore(cfg.Global.StoragePath, cfg.Store.Options(logger))
	if err != nil {
		return nil, fail(1, fmt.Errorf("初始化缓存目录失败: %w", err))
	}

	c, err := codec.Lookup(cfg.Store.Codec)
	if err != nil {
		return nil, fail(1, err)
	}

	return &runtimeEnv{
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		store:      store,
		codec:      c,
	}, nil
}

func (e *runtimeEnv) typed() cache.Typed[any] {
	return cache.NewTyped[any](e.store, e.codec, e.cfg.Store.TypedOptions())
}

func (e *runtimeEnv) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.cfg.Global.RequestTimeout.DurationValue())
}

func newServeCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(configPath(), false)
			if err != nil {
				return err
			}

			app, err := server.NewApp(server.AppOptions{
				Logger:         env.logger,
				Store:          env.store,
				ListenPort:     env.cfg.Global.ListenPort,
				RequestTimeout: env.cfg.Global.RequestTimeout.DurationValue(),
			})
			if err != nil {
				return fail(1, fmt.Errorf("构建 HTTP 服务失败: %w", err))
			}
			routes.RegisterDiagnosticRoutes(app, env.store)

			fields := logging.BaseFields("startup", env.configPath)
			fields["listen_port"] = env.cfg.Global.ListenPort
			fields["storage_path"] = env.cfg.Global.StoragePath
			fields["version"] = version.Full()
			env.logger.WithFields(fields).Info("配置加载完成")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				_ = app.Shutdown()
			}()

			if err := app.Listen(fmt.Sprintf(":%d", env.cfg.Global.ListenPort)); err != nil {
				return fail(1, fmt.Errorf("HTTP 服务启动失败: %w", err))
			}
			return nil
		},
	}
}

func newGetCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "读取 key，未命中时退出码为 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(configPath(), true)
			if err != nil {
				return err
			}
			ctx, cancel := env.context()
			defer cancel()

			value, err := env.typed().Get(ctx, args[0])
			if errors.Is(err, cache.ErrNotFound) {
				return fail(1, nil)
			}
			if err != nil {
				return fail(1, err)
			}
			out, err := env.codec.Encode(value)
			if err != nil {
				return fail(1, err)
			}
			fmt.Fprintln(stdOut, out)
			return nil
		},
	}
}

func newSetCmd(configPath func() string) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "写入 key；VALUE 按配置的 Codec 解析",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(configPath(), true)
			if err != nil {
				return err
			}

			var value any = args[1]
			if env.codec != codec.Raw {
				if err := env.codec.Decode(args[1], &value); err != nil {
					return fail(2, fmt.Errorf("VALUE 不是合法的 %s: %w", env.codec.Name(), err))
				}
			}

			ctx, cancel := env.context()
			defer cancel()
			if err := env.typed().Set(ctx, args[0], value, ttl); err != nil {
				return fail(1, fmt.Errorf("写入失败: %w", err))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "过期时间（0 表示使用 DefaultTTL，负数表示立即过期）")
	return cmd
}

func newDeleteCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:     "delete KEY",
		Aliases: []string{"del", "rm"},
		Short:   "删除 key（幂等）",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(configPath(), true)
			if err != nil {
				return err
			}
			ctx, cancel := env.context()
			defer cancel()
			return env.typed().Delete(ctx, args[0])
		},
	}
}

func newHasCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "has KEY",
		Short: "判断 key 是否存在，不存在时退出码为 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(configPath(), true)
			if err != nil {
				return err
			}
			ctx, cancel := env.context()
			defer cancel()
			if !env.typed().Has(ctx, args[0]) {
				return fail(1, nil)
			}
			return nil
		},
	}
}

func newClearCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "递归删除整个缓存目录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(configPath(), true)
			if err != nil {
				return err
			}
			ctx, cancel := env.context()
			defer cancel()
			if err := env.store.Clear(ctx); err != nil {
				return fail(1, err)
			}
			fields := logging.BaseFields("clear", env.configPath)
			fields["dir"] = env.cfg.Global.StoragePath
			env.logger.WithFields(fields).Info("缓存目录已清空")
			return nil
		},
	}
}

func newPathCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "path KEY",
		Short: "打印 key 对应的文件路径",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(configPath(), true)
			if err != nil {
				return err
			}
			key := args[0]
			if ns := env.cfg.Store.Namespace; ns != "" {
				key = ns + ":" + key
			}
			fmt.Fprintln(stdOut, env.store.Path(key))
			return nil
		},
	}
}

func newCheckConfigCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "仅校验配置后退出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			cfg, err := config.Load(path)
			if err != nil {
				return fail(1, fmt.Errorf("加载配置失败: %w", err))
			}
			logger, err := logging.InitLogger(cfg.Global)
			if err != nil {
				return fail(1, fmt.Errorf("初始化日志失败: %w", err))
			}
			fields := logging.BaseFields("check_config", path)
			fields["storage_path"] = cfg.Global.StoragePath
			fields["naming"] = cfg.Store.Naming
			fields["codec"] = cfg.Store.Codec
			fields["result"] = "ok"
			logger.WithFields(fields).Info("配置校验通过")
			return nil
		},
	}
}
