package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bounty-escrow-system/middleware"
	"bounty-escrow-system/services"
)

// Paths that bypass gateway auth
var OpenPaths = []string{"/healthz", "/metrics"}

func SetupBountyRoutes(app *fiber.App, bountyService *services.BountyService, log *zap.Logger) {
	// 🔓 Probes
	app.Get("/healthz", bountyService.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// 🔐 Caller context from the gateway
	secured := app.Group("/", middleware.CallerContextMiddleware(log))

	// Bounties
	secured.Post("/bounties", bountyService.CreateBounty)
	secured.Get("/bounties", bountyService.GetAllBounties)
	secured.Get("/bounties/count", bountyService.GetBountyCount) // before /bounties/:id
	secured.Get("/bounties/:id", bountyService.GetBounty)
	secured.Post("/bounties/:id/participants", bountyService.Participate)
	secured.Post("/bounties/:id/finalize", bountyService.Finalize)
	secured.Get("/bounties/:id/transfers", bountyService.GetBountyTransfers)

	// Projections
	secured.Get("/participants/:identity/bounties", bountyService.GetBountiesByParticipant)
	secured.Get("/creators/:identity/bounties", bountyService.GetBountiesByCreator)

	// Owner and fee
	secured.Post("/owner", bountyService.SetOwner)
	secured.Get("/fee", bountyService.GetFeeInfo)
	secured.Put("/fee", bountyService.UpdateFeePercentage)

	// Outbox
	secured.Get("/transfers/:id", bountyService.GetTransfer)
	secured.Post("/admin/transfers/:id/retry", bountyService.RetryTransfer)
}
