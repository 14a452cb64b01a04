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
		log.Println("creating credit_ledger table...")
		if err := mghelper.CreateSchema(ctx, db, &ledgerstore.CreditLedgerDao{}); err != nil {
			return err
		}
		return mghelper.CreateIndexes(ctx, db, "credit_ledger", "user_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping credit_ledger table...")
		return mghelper.DropTables(ctx, db, &ledgerstore.CreditLedgerDao{})
	})
}
