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
		log.Println("creating deposits table...")
		if err := mghelper.CreateSchema(ctx, db, &ledgerstore.DepositDao{}); err != nil {
			return err
		}
		return mghelper.CreateIndexes(ctx, db, "deposits", "status", "block_number", "sender")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping deposits table...")
		return mghelper.DropTables(ctx, db, &ledgerstore.DepositDao{})
	})
}
