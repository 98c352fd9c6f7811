package handler

import (
	"github.com/gofiber/fiber/v2"

	"towerdocs/internal/model"
	"towerdocs/internal/service"
)

// ListCategories returns every category with its variant count.
//
// @Summary  List categories
// @Tags     categories
// @Produce  json
// @Success  200 {array} model.Category
// @Router   /categories [get]
func ListCategories(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cats, err := svc.ListCategories(c.UserContext())
		if err != nil {
			return writeAppError(c, err)
		}
		if cats == nil {
			cats = []model.Category{}
		}
		return c.JSON(cats)
	}
}

// GetCategory returns a category and its variants ordered by height.
//
// @Summary  Get category
// @Tags     categories
// @Produce  json
// @Param    id path string true "category id"
// @Success  200 {object} model.CategoryDetail
// @Failure  404 {object} errorPayload
// @Router   /categories/{id} [get]
func GetCategory(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := pathID(c)
		if !ok {
			return err
		}
		cat, err := svc.GetCategory(c.UserContext(), id)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(cat)
	}
}

// CreateCategory
//
// @Summary  Create category
// @Tags     admin
// @Security BearerAuth
// @Accept   json
// @Produce  json
// @Param    body body     service.CategoryInput true "category"
// @Success  201  {object} model.Category
// @Failure  400  {object} errorPayload
// @Failure  409  {object} errorPayload
// @Router   /admin/categories [post]
func CreateCategory(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.CategoryInput
		if ok, err := bindJSON(c, &in); !ok {
			return err
		}
		cat, err := svc.CreateCategory(c.UserContext(), in)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(cat)
	}
}

// UpdateCategory
//
// @Summary  Update category
// @Tags     admin
// @Security BearerAuth
// @Accept   json
// @Produce  json
// @Param    id   path     string                true "category id"
// @Param    body body     service.CategoryInput true "category"
// @Success  200  {object} model.Category
// @Router   /admin/categories/{id} [put]
func UpdateCategory(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := pathID(c)
		if !ok {
			return err
		}
		var in service.CategoryInput
		if ok, err := bindJSON(c, &in); !ok {
			return err
		}
		cat, err := svc.UpdateCategory(c.UserContext(), id, in)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(cat)
	}
}

// DeleteCategory removes a category. ?policy=cascade also removes its
// variants and their drawings; restrict refuses while variants remain.
//
// @Summary  Delete category
// @Tags     admin
// @Security BearerAuth
// @Param    id     path  string true  "category id"
// @Param    policy query string false "restrict or cascade"
// @Success  204
// @Failure  409 {object} errorPayload
// @Router   /admin/categories/{id} [delete]
func DeleteCategory(svc service.CatalogService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := pathID(c)
		if !ok {
			return err
		}
		policy := service.DeletePolicy(c.Query("policy"))
		if err := svc.DeleteCategory(c.UserContext(), id, policy); err != nil {
			return writeAppError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
