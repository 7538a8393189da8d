package v1

import (
	"net/http"

	"github.com/scanmux/scanmux/pkg/server/api"
)

// ListProvidersHandler handles GET /api/v1/providers
//
// Reports the assessment providers this instance knows about and whether
// each is enabled and has its required configuration. Clients use this to
// explain partial scan coverage.
//
// Response format:
//
//	{
//	  "providers": [
//	    {"name": "headergrade", "enabled": true, "configured": true},
//	    {"name": "exposure", "enabled": true, "configured": false}
//	  ]
//	}
func ListProvidersHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers := deps.Providers
		if providers == nil {
			providers = []api.ProviderStatus{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"providers": providers,
		})
	}
}
