package watcherdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/lumenpay/credits-middleware/pkg/ledgerstore"
	mghelper "github.com/lumenpay/credits-middleware/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating users table...")
		return mghelper.CreateSchema(ctx, db, &ledgerstore.UserDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping users table...")
		return mghelper.DropTables(ctx, db, &ledgerstore.UserDao{})
	})
}
