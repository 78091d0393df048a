package handlers

import (
	"context"
	"fmt"

	"github.com/isometry/papercut-seeder/internal/pagination"
	"github.com/isometry/papercut-seeder/internal/papercut"
)

// Listing kinds accepted by List.
const (
	KindUsers          = "users"
	KindPrinters       = "printers"
	KindSharedAccounts = "shared-accounts"
)

// ListKinds returns the accepted listing kinds.
func ListKinds() []string {
	return []string{KindUsers, KindPrinters, KindSharedAccounts}
}

type fetcherFunc func(papercut.Directory) pagination.FetchFunc[string]

var fetchers = map[string]fetcherFunc{
	KindUsers:          func(d papercut.Directory) pagination.FetchFunc[string] { return d.ListAccounts },
	KindPrinters:       func(d papercut.Directory) pagination.FetchFunc[string] { return d.ListPrinters },
	KindSharedAccounts: func(d papercut.Directory) pagination.FetchFunc[string] { return d.ListSharedAccounts },
}

// List prints every entry of kind, one per line. Nothing is printed unless the
// enumeration completes.
func List(ctx context.Context, configPath, kind string) error {
	fetcher, ok := fetchers[kind]
	if !ok {
		return fmt.Errorf("unknown listing kind %q, expected one of %v", kind, ListKinds())
	}

	s, err := openSession(ctx, configPath)
	if err != nil {
		return err
	}
	defer s.close("list")

	lister := pagination.NewLister[string](s.cfg.Enumeration.PageSize, s.listerOptions()...)
	items, err := pagination.Collect(lister.Enumerate(s.ctx, kind, fetcher(s.directory)))
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", kind, err)
	}

	for _, item := range items {
		fmt.Fprintln(stdout, item)
	}

	s.logger.Info("Listing complete", map[string]any{
		"kind":  kind,
		"count": len(items),
	})
	return nil
}
