package handler

import (
	"github.com/gofiber/fiber/v2"

	"towerdocs/internal/service"
)

// ListVariants
//
// @Summary  List variants
// @Tags     variants
// @Produce  json
// @Param    limit  query int false "page size" default(10)
// @Param    offset query int false "offset"    default(0)
// @Success  200 {object} service.VariantListResult
// @Router   /variants [get]
func ListVariants(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, offset, ok, err := pageParams(c)
		if !ok {
			return err
		}
		res, err := svc.ListVariants(c.UserContext(), limit, offset)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(res)
	}
}

// GetVariant returns a variant with its active drawing and download URL.
//
// @Summary  Get variant
// @Tags     variants
// @Produce  json
// @Param    id path string true "variant id"
// @Success  200 {object} model.VariantDetail
// @Failure  404 {object} errorPayload
// @Router   /variants/{id} [get]
func GetVariant(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := pathID(c)
		if !ok {
			return err
		}
		v, err := svc.GetVariant(c.UserContext(), id)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(v)
	}
}

// CreateVariant
//
// @Summary  Create variant
// @Tags     admin
// @Security BearerAuth
// @Accept   json
// @Produce  json
// @Param    body body     service.VariantInput true "variant"
// @Success  201  {object} model.Variant
// @Failure  400  {object} errorPayload
// @Failure  409  {object} errorPayload
// @Router   /admin/variants [post]
func CreateVariant(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.VariantInput
		if ok, err := bindJSON(c, &in); !ok {
			return err
		}
		v, err := svc.CreateVariant(c.UserContext(), in)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(v)
	}
}

// UpdateVariant
//
// @Summary  Update variant
// @Tags     admin
// @Security BearerAuth
// @Accept   json
// @Produce  json
// @Param    id   path     string               true "variant id"
// @Param    body body     service.VariantInput true "variant"
// @Success  200  {object} model.Variant
// @Router   /admin/variants/{id} [put]
func UpdateVariant(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := pathID(c)
		if !ok {
			return err
		}
		var in service.VariantInput
		if ok, err := bindJSON(c, &in); !ok {
			return err
		}
		v, err := svc.UpdateVariant(c.UserContext(), id, in)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(v)
	}
}

// DeleteVariant removes a variant. Without ?purge=true it is refused while
// documents remain.
//
// @Summary  Delete variant
// @Tags     admin
// @Security BearerAuth
// @Param    id    path  string true  "variant id"
// @Param    purge query bool   false "also delete documents"
// @Success  204
// @Failure  409 {object} errorPayload
// @Router   /admin/variants/{id} [delete]
func DeleteVariant(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := pathID(c)
		if !ok {
			return err
		}
		if err := svc.DeleteVariant(c.UserContext(), id, c.QueryBool("purge", false)); err != nil {
			return writeAppError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// Search matches categories and variants by name or tower code.
//
// @Summary  Search catalog
// @Tags     variants
// @Produce  json
// @Param    q query string true "query"
// @Success  200 {object} model.SearchResult
// @Failure  400 {object} errorPayload
// @Router   /search [get]
func Search(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.Search(c.UserContext(), c.Query("q"))
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(res)
	}
}

// Dashboard
//
// @Summary  Catalog summary
// @Tags     admin
// @Security BearerAuth
// @Produce  json
// @Success  200 {object} model.Dashboard
// @Router   /admin/dashboard [get]
func Dashboard(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := svc.Dashboard(c.UserContext())
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(d)
	}
}
