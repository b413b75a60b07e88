// Package diffgate decides whether a local settings document needs pushing.
package diffgate

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/starford/chatsync/internal/models"
)

var equalOpts = cmp.Options{cmpopts.EquateEmpty()}

// ShouldSync reports whether doc differs from the last pushed snapshot.
// An init document is never synced; a nil snapshot means nothing has been
// pushed yet.
func ShouldSync(doc models.SettingsDocument, snapshot *models.SettingsDocument) bool {
	if doc.Init {
		return false
	}
	if snapshot == nil {
		return true
	}
	return !Equal(doc, *snapshot)
}

// Equal reports structural equality. Nil and empty collections compare
// equal.
func Equal(a, b models.SettingsDocument) bool {
	return cmp.Equal(a, b, equalOpts)
}
