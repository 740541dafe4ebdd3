package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/contacts"
	"github.com/warmpath/backend/internal/storage"
	"github.com/warmpath/backend/internal/storage/models"
	"github.com/warmpath/backend/pkg/logger"
)

const demoEmail = "founder@example.com"

var demoSources = []struct {
	name string
	typ  models.SourceType
}{
	{"Manual", models.SourceManual},
	{"LinkedIn", models.SourceSocial},
	{"Google", models.SourceEmail},
}

var demoContacts = []struct {
	source string
	models.Contact
}{
	{"Manual", models.Contact{FullName: "Alice Coordinator", Email: "alice@example.com", Company: "Acme Inc", Role: "Operations Lead", Notes: "Great at keeping projects on track."}},
	{"LinkedIn", models.Contact{FullName: "Bob Connector", Email: "bob@example.com", Company: "Startup Hub", Role: "Community Manager", Notes: "Knows everyone in the local startup scene."}},
	{"LinkedIn", models.Contact{FullName: "Carol Investor", Email: "carol@example.com", Company: "Seed Ventures", Role: "Angel Investor", Notes: "Early-stage; prefers concise updates."}},
	{"Google", models.Contact{FullName: "Dan Engineer", Email: "dan@example.com", Company: "TechCo", Role: "Senior Engineer", Notes: "Ideal for technical deep dives."}},
	{"Manual", models.Contact{FullName: "Eve Advisor", Email: "eve@example.com", Role: "Advisor", Notes: "Trusted sounding board for tricky intros."}},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo user with sample contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		added, err := seedDemo(ctx, store)
		if err != nil {
			return err
		}

		logger.Info("seed complete", zap.String("email", demoEmail), zap.Int("added", added))
		return nil
	},
}

// seedDemo creates the demo user, its sources and contacts. Contacts already
// present under the same name and company are left alone.
func seedDemo(ctx context.Context, store storage.Store) (int, error) {
	user, err := store.UpsertUserByEmail(ctx, demoEmail)
	if err != nil {
		return 0, eris.Wrap(err, "seed user")
	}

	sourceIDs := make(map[string]string, len(demoSources))
	for _, s := range demoSources {
		src, err := store.GetOrCreateSource(ctx, user.ID, s.name, s.typ)
		if err != nil {
			return 0, eris.Wrapf(err, "seed source %s", s.name)
		}
		sourceIDs[s.name] = src.ID
	}

	existing, err := store.ListContacts(ctx, user.ID, storage.ContactFilter{})
	if err != nil {
		return 0, eris.Wrap(err, "list existing contacts")
	}
	seen := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		seen[contacts.DedupeKey(c.FullName, c.Company)] = struct{}{}
	}

	added := 0
	for _, dc := range demoContacts {
		key := contacts.DedupeKey(dc.FullName, dc.Company)
		if _, ok := seen[key]; ok {
			continue
		}
		c := dc.Contact
		c.OwnerID = user.ID
		c.SourceID = sourceIDs[dc.source]
		if err := store.CreateContact(ctx, &c); err != nil {
			return added, eris.Wrapf(err, "seed contact %s", c.FullName)
		}
		seen[key] = struct{}{}
		added++
	}
	return added, nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
