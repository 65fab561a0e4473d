package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/claimdesk/core/bootstrap"
	"github.com/m3rciful/claimdesk/core/buildinfo"
	"github.com/m3rciful/claimdesk/core/cmd"
	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/logger"
	"github.com/m3rciful/claimdesk/core/telegram"
	"github.com/m3rciful/claimdesk/core/telegram/state"
	"github.com/m3rciful/claimdesk/internal/adminapi"
	"github.com/m3rciful/claimdesk/internal/admins"
	"github.com/m3rciful/claimdesk/internal/chat"
	"github.com/m3rciful/claimdesk/internal/claims"
	"github.com/m3rciful/claimdesk/internal/claimsbot"
	"github.com/m3rciful/claimdesk/internal/konsol"
	"github.com/m3rciful/claimdesk/internal/payments"
	"github.com/m3rciful/claimdesk/internal/salesbot"
	"github.com/m3rciful/claimdesk/internal/storage/mongostore"
	"github.com/m3rciful/claimdesk/internal/storage/postgres"
	"github.com/m3rciful/claimdesk/internal/support"
)

const (
	claimsBotName = "claims"
	salesBotName  = "sales"
)

type app struct {
	res        *bootstrap.Result
	components []cmd.Component
}

func (a *app) Components() []cmd.Component { return a.components }

func (a *app) Close(ctx context.Context) error { return a.res.Close(ctx) }

func bootstrapApp(ctx context.Context, cfg *coreconfig.Config) (cmd.App, error) {
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config: cfg,
		Modules: bootstrap.Modules{Seeders: []bootstrap.Seeder{
			mongostore.IndexSeeder(cfg.Mongo),
			bootstrap.SeederFunc(func(ctx context.Context, res *bootstrap.Result) error {
				return claims.LoadCodes(ctx, cfg.Campaign.CodesFile, postgres.New(res.DB).Codes)
			}),
		}},
	})
	if err != nil {
		return nil, err
	}
	logger.LogEvent(ctx, logger.L, slog.LevelInfo, "build",
		slog.String("version", buildinfo.String()),
		slog.String("app_env", cfg.AppEnv),
	)

	a := &app{res: res}
	if err := a.wire(cfg); err != nil {
		_ = res.Close(context.Background())
		return nil, err
	}
	return a, nil
}

// wire builds services over the stores and registers the components.
func (a *app) wire(cfg *coreconfig.Config) error {
	store := postgres.New(a.res.DB)
	states := mongostore.NewStateStore(a.res.Mongo.Database(cfg.Mongo.StateDB).Collection(cfg.Mongo.StateCollection))
	sales := mongostore.NewSalesDB(a.res.Mongo.Database(cfg.Mongo.SalesDB))

	claimsRT, err := telegram.NewRuntime(telegram.Options{Name: claimsBotName, Config: cfg.ClaimsBot})
	if err != nil {
		return err
	}
	claimStates, err := state.NewManager(claimsBotName, states)
	if err != nil {
		return fmt.Errorf("claims state: %w", err)
	}

	supportSvc := support.New(store.Support, store.Users, claimStates, claimsRT.Messenger, support.Limits{
		UserDocument: int64(cfg.Campaign.DocumentLimitMB) << 20,
		AdminUpload:  int64(cfg.HTTP.UploadLimitMB) << 20,
	})
	chats := chat.New(store.Chats, store.Claims, store.Users, supportSvc, claimsRT.Messenger, cfg.Campaign.GroupID)
	provider := konsol.New(cfg.Konsol, cfg.IsMockMode())
	claimSvc := claims.NewService(store.Claims, provider, chats, claimsRT.Messenger, claims.Payout{
		Amount:  cfg.Campaign.Payout(),
		Purpose: cfg.Campaign.PayoutPurpose,
	})
	accounts := admins.New(store.Admins, time.Duration(cfg.HTTP.SessionTTLHours)*time.Hour)

	claimsBot := claimsbot.New(claimsbot.Deps{
		Config:    cfg.ClaimsBot,
		Campaign:  cfg.Campaign,
		States:    claimStates,
		Messenger: claimsRT.Messenger,
		Users:     store.Users,
		Codes:     store.Codes,
		Claims:    claimSvc,
		Support:   supportSvc,
		Chats:     chats,
		Accounts:  accounts,
	})
	if err := claimsBot.Register(claimsRT.Registry); err != nil {
		return fmt.Errorf("claims bot: %w", err)
	}
	claimsMW := append(telegram.DefaultMiddlewares(claimsBotName, cfg.RateLimit, claimsBot.OnRateLimited),
		telegram.Middleware{Name: "ban_check", Use: claimsBot.BanCheck})
	a.components = append(a.components, cmd.Component{
		Name: "claims_bot",
		Run: func(ctx context.Context) error {
			return telegram.RunTelegram(ctx, telegram.RunOptions{
				Runtime:     claimsRT,
				Middlewares: claimsMW,
				Routes:      claimsBot.Routes(claimsRT.Registry),
			})
		},
	})

	var salesSender adminapi.Sender
	if cfg.SalesBot.Token != "" {
		salesRT, err := telegram.NewRuntime(telegram.Options{Name: salesBotName, Config: cfg.SalesBot})
		if err != nil {
			return err
		}
		salesStates, err := state.NewManager(salesBotName, states)
		if err != nil {
			return fmt.Errorf("sales state: %w", err)
		}
		salesBot := salesbot.New(salesbot.Deps{
			Config:    cfg.SalesBot,
			Mailing:   cfg.Mailing,
			States:    salesStates,
			Messenger: salesRT.Messenger,
			Store:     sales,
			Username:  salesRT.Bot.Me.Username,
		})
		if err := salesBot.Register(salesRT.Registry); err != nil {
			return fmt.Errorf("sales bot: %w", err)
		}
		a.components = append(a.components, cmd.Component{
			Name: "sales_bot",
			Run: func(ctx context.Context) error {
				return telegram.RunTelegram(ctx, telegram.RunOptions{
					Runtime:     salesRT,
					Middlewares: telegram.DefaultMiddlewares(salesBotName, cfg.RateLimit, nil),
					Routes:      salesBot.Routes(salesRT.Registry),
					OnStart:     salesBot.Start,
					OnStop:      salesBot.Stop,
				})
			},
		})
		salesSender = salesRT.Messenger
	} else {
		logger.LogEvent(context.Background(), logger.L, slog.LevelWarn, "sales_bot.disabled",
			slog.String("reason", "no token"),
		)
	}

	api := adminapi.New(adminapi.Deps{
		Config:   cfg.HTTP,
		Accounts: accounts,
		Claims:   claimSvc,
		Chats:    chats,
		Support:  supportSvc,
		Payments: payments.NewService(provider, store.Payments),
		Payouts:  store.Payments,
		Banks:    payments.Banks,
		Sales:    sales,
		SalesBot: salesSender,
		Files:    claimsRT.Messenger,
	})
	a.components = append(a.components, cmd.Component{Name: "admin_api", Run: api.Run})
	return nil
}
