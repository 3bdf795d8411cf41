package main

import (
	"report-intake-go/internal/config"
	"report-intake-go/internal/repository"
	"report-intake-go/pkg/database"
	"report-intake-go/pkg/log"

	"github.com/spf13/cobra"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "创建或更新数据库表后退出",
		RunE: func(_ *cobra.Command, _ []string) error {
			config.Init(*configPath)
			cfg := config.Conf
			log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
			defer log.Sync()

			db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
			if err != nil {
				return err
			}
			defer database.Close(db)
			if err := repository.AutoMigrate(db); err != nil {
				return err
			}
			log.Info("数据库迁移完成")
			return nil
		},
	}
}
