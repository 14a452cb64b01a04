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
		log.Println("creating payments table...")
		if err := mghelper.CreateSchema(ctx, db, &ledgerstore.PaymentDao{}); err != nil {
			return err
		}
		return mghelper.CreateIndexes(ctx, db, "payments", "user_id", "status")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping payments table...")
		return mghelper.DropTables(ctx, db, &ledgerstore.PaymentDao{})
	})
}
