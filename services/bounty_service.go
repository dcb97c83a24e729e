// services/bounty_service.go
package services

import (
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"bounty-escrow-system/escrow"
	"bounty-escrow-system/models"
)

type BountyService struct {
	Engine *escrow.Engine
	Log    *zap.Logger
}

func NewBountyService(engine *escrow.Engine, log *zap.Logger) *BountyService {
	return &BountyService{Engine: engine, Log: log}
}

// statusOf maps engine error kinds to HTTP statuses.
func statusOf(kind string) int {
	switch kind {
	case "InvalidInput", "PrizeCountMismatch", "PaymentMismatch":
		return fiber.StatusBadRequest
	case "Unauthorized":
		return fiber.StatusForbidden
	case "OwnerNotSet", "BountyClosed":
		return fiber.StatusConflict
	case "NotAParticipant":
		return fiber.StatusUnprocessableEntity
	case "NotFound":
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *BountyService) fail(c *fiber.Ctx, err error) error {
	kind := escrow.Kind(err)
	status := statusOf(kind)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		s.Log.Error("request failed",
			zap.String("path", c.Path()),
			zap.Any("request_id", c.Locals("request_id")),
			zap.Error(err))
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": kind, "message": msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "InvalidInput", "message": msg})
}

// identityParam decodes a percent-encoded identity from the path. Routing runs
// on the raw path so an escaped "/" stays inside the segment.
func identityParam(c *fiber.Ctx) (string, bool) {
	id, err := url.PathUnescape(c.Params("identity"))
	return id, err == nil
}

func parseID(c *fiber.Ctx, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	return id, err == nil
}

// CreateBounty locks the attached payment for the posted prizes
func (s *BountyService) CreateBounty(c *fiber.Ctx) error {
	var req struct {
		Prizes []models.Amount `json:"prizes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "prizes must be an array of base-10 integer strings")
	}
	id, err := s.Engine.CreateBounty(c.UserContext(), req.Prizes)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"bounty_id": id})
}

func (s *BountyService) Participate(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid bounty id")
	}
	if err := s.Engine.Participate(c.UserContext(), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"bounty_id": id, "participant": c.Locals("caller_id")})
}

// Finalize names the winners in prize order
func (s *BountyService) Finalize(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid bounty id")
	}
	var req struct {
		Winners []string `json:"winners"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "winners must be an array of identities")
	}
	res, err := s.Engine.Finalize(c.UserContext(), id, req.Winners)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

func (s *BountyService) SetOwner(c *fiber.Ctx) error {
	var req struct {
		NewOwner string `json:"new_owner"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	owner, err := s.Engine.SetOwner(c.UserContext(), req.NewOwner)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"owner": owner})
}

func (s *BountyService) UpdateFeePercentage(c *fiber.Ctx) error {
	var req struct {
		FeePercentage *int64 `json:"fee_percentage"`
	}
	if err := c.BodyParser(&req); err != nil || req.FeePercentage == nil {
		return badRequest(c, "fee_percentage is required")
	}
	if *req.FeePercentage < 0 {
		return badRequest(c, "fee_percentage out of [0, 100]")
	}
	if err := s.Engine.UpdateFeePercentage(c.UserContext(), uint64(*req.FeePercentage)); err != nil {
		return s.fail(c, err)
	}
	info, err := s.Engine.FeeInfo(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(info)
}

func (s *BountyService) GetBounty(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid bounty id")
	}
	b, err := s.Engine.GetBounty(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(b)
}

func (s *BountyService) GetAllBounties(c *fiber.Ctx) error {
	bounties, err := s.Engine.GetAllBounties(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(bounties)
}

func (s *BountyService) GetBountiesByParticipant(c *fiber.Ctx) error {
	identity, ok := identityParam(c)
	if !ok {
		return badRequest(c, "invalid identity")
	}
	bounties, err := s.Engine.GetBountiesByParticipant(c.UserContext(), identity)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(bounties)
}

func (s *BountyService) GetBountiesByCreator(c *fiber.Ctx) error {
	identity, ok := identityParam(c)
	if !ok {
		return badRequest(c, "invalid identity")
	}
	bounties, err := s.Engine.GetBountiesByCreator(c.UserContext(), identity)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(bounties)
}

func (s *BountyService) GetFeeInfo(c *fiber.Ctx) error {
	info, err := s.Engine.FeeInfo(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(info)
}

func (s *BountyService) GetBountyCount(c *fiber.Ctx) error {
	n, err := s.Engine.Count(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

// --- Outbox ---

func (s *BountyService) GetBountyTransfers(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid bounty id")
	}
	transfers, err := s.Engine.ListTransfers(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(transfers)
}

func (s *BountyService) GetTransfer(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid transfer id")
	}
	t, err := s.Engine.GetTransfer(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(t)
}

// RetryTransfer re-queues a failed transfer (owner only)
func (s *BountyService) RetryTransfer(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid transfer id")
	}
	t, err := s.Engine.RetryTransfer(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (s *BountyService) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
