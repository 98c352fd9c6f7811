package handler

import (
	"github.com/gofiber/fiber/v2"

	"towerdocs/internal/model"
	"towerdocs/internal/service"
)

// ListDocuments lists every document, newest upload first.
//
// @Summary  List documents
// @Tags     admin
// @Security BearerAuth
// @Produce  json
// @Param    limit  query int false "page size" default(10)
// @Param    offset query int false "offset"    default(0)
// @Success  200 {object} service.DocumentListResult
// @Router   /admin/documents [get]
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, offset, ok, err := pageParams(c)
		if !ok {
			return err
		}
		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(res)
	}
}

// UploadDocument stores a PDF as the variant's new active version.
//
// @Summary  Upload a new drawing version
// @Tags     admin
// @Security BearerAuth
// @Accept   multipart/form-data
// @Produce  json
// @Param    id   path     string true "variant id"
// @Param    file formData file   true "PDF drawing"
// @Success  201 {object} model.Document
// @Failure  400 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Failure  413 {object} errorPayload
// @Failure  502 {object} errorPayload
// @Router   /admin/variants/{id}/documents [post]
func UploadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		variantID, ok, err := pathID(c)
		if !ok {
			return err
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		doc, err := svc.UploadNewVersion(c.UserContext(), variantID, f, model.UploadInput{
			Filename:    fh.Filename,
			ContentType: ct,
			Size:        fh.Size,
		})
		if err != nil {
			return writeAppError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// ListVersionHistory returns all versions of a variant, newest first.
//
// @Summary  Version history of a variant
// @Tags     variants
// @Produce  json
// @Param    id path string true "variant id"
// @Success  200 {array} model.Document
// @Router   /variants/{id}/documents [get]
func ListVersionHistory(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		variantID, ok, err := pathID(c)
		if !ok {
			return err
		}
		docs, err := svc.ListVersionHistory(c.UserContext(), variantID)
		if err != nil {
			return writeAppError(c, err)
		}
		if docs == nil {
			docs = []model.Document{}
		}
		return c.JSON(docs)
	}
}

// GetDocument returns one document with its download URL.
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := pathID(c)
		if !ok {
			return err
		}
		doc, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(doc)
	}
}

// ActivateDocument rolls the variant to the given version.
//
// @Summary  Activate a document version
// @Tags     admin
// @Security BearerAuth
// @Produce  json
// @Param    id path string true "document id"
// @Success  200 {object} model.Document
// @Router   /admin/documents/{id}/activate [post]
func ActivateDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := pathID(c)
		if !ok {
			return err
		}
		doc, err := svc.ActivateVersion(c.UserContext(), id)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(doc)
	}
}

// DeleteDocument removes a version. The active version needs ?replacement=<id>.
//
// @Summary  Delete a document version
// @Tags     admin
// @Security BearerAuth
// @Param    id          path  string true  "document id"
// @Param    replacement query string false "document to activate instead"
// @Success  204
// @Failure  409 {object} errorPayload
// @Router   /admin/documents/{id} [delete]
func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := pathID(c)
		if !ok {
			return err
		}
		if err := svc.DeleteVersion(c.UserContext(), id, c.Query("replacement")); err != nil {
			return writeAppError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
