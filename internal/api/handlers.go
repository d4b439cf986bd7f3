package api

import (
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/locking"
	"github.com/gmsas95/docdesk/internal/pages"
	"github.com/gmsas95/docdesk/internal/review"
	"github.com/gmsas95/docdesk/internal/revision"
)

// Version is reported by the health endpoint
var Version = "dev"

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   Version,
		"timestamp": time.Now().Unix(),
	})
}

// ==================== Documents ====================

func (s *Server) handleUpload(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return apperrors.Validation("no file provided")
	}
	f, err := file.Open()
	if err != nil {
		return apperrors.Validation("cannot read upload: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return apperrors.Validation("cannot read upload: %v", err)
	}

	res, err := s.services.Pages.Ingest(c.UserContext(), sc, pages.IngestRequest{
		FileName: file.Filename,
		MimeType: file.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (s *Server) handleGetDocument(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	doc, err := s.services.Pages.GetDocument(c.UserContext(), sc, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (s *Server) handleListPages(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	list, err := s.services.Pages.ListPages(c.UserContext(), sc, id)
	if err != nil {
		return err
	}
	return c.JSON(pagesResponse{DocumentID: id, Pages: list})
}

func (s *Server) handleListChildren(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	children, err := s.services.Pages.ListChildren(c.UserContext(), sc, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(children)
}

func (s *Server) handleDownload(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	doc, data, err := s.services.Pages.Download(c.UserContext(), sc, c.Params("id"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, doc.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.FileName))
	return c.Send(data)
}

func (s *Server) handleSetPipeline(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	var req pipelineRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	doc, err := s.services.Pages.SetPipelineStatus(c.UserContext(), sc, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

// ==================== Structural Mutations ====================

func (s *Server) handleAcquireLock(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	key, err := idempotencyKey(c)
	if err != nil {
		return err
	}
	var req lockRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.services.Locks.Acquire(c.UserContext(), sc, locking.AcquireRequest{
		DocumentID:      c.Params("id"),
		ExpectedVersion: req.ExpectedVersion,
		IdempotencyKey:  key,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleDeletePages(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	key, err := idempotencyKey(c)
	if err != nil {
		return err
	}
	var req deletePagesRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.services.Pages.DeletePages(c.UserContext(), sc, pages.DeleteRequest{
		DocumentID:      c.Params("id"),
		PageNumbers:     req.PageNumbers,
		ExpectedVersion: req.ExpectedVersion,
		IdempotencyKey:  key,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleReorderPages(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	key, err := idempotencyKey(c)
	if err != nil {
		return err
	}
	var req reorderPagesRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.services.Pages.ReorderPages(c.UserContext(), sc, pages.ReorderRequest{
		DocumentID:      c.Params("id"),
		NewOrder:        req.NewOrder,
		ExpectedVersion: req.ExpectedVersion,
		IdempotencyKey:  key,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleMerge(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	key, err := idempotencyKey(c)
	if err != nil {
		return err
	}
	var req mergeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.services.Pages.Merge(c.UserContext(), sc, pages.MergeRequest{
		DocumentIDs:    req.DocumentIDs,
		FileName:       req.FileName,
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (s *Server) handleSplit(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	key, err := idempotencyKey(c)
	if err != nil {
		return err
	}
	var req splitRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.services.Pages.Split(c.UserContext(), sc, pages.SplitRequest{
		DocumentID:      c.Params("id"),
		Ranges:          req.Ranges,
		ExpectedVersion: req.ExpectedVersion,
		IdempotencyKey:  key,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// ==================== Duplicates ====================

func (s *Server) handleCheckDuplicates(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	var req checkDuplicatesRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.services.Duplicates.CheckExact(c.UserContext(), sc, req.FileHashes, req.CompanyID)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleEvaluateDuplicate(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	res, err := s.services.Duplicates.Evaluate(c.UserContext(), sc, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleResolveDuplicate(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	var req resolveDuplicateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	doc, err := s.services.Duplicates.Resolve(c.UserContext(), sc, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

// ==================== Revisions ====================

func (s *Server) handleListRevisions(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	revs, err := s.services.Revisions.List(c.UserContext(), sc, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(revs)
}

func (s *Server) handleCreateRevision(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	var in revision.Input
	if err := parseBody(c, &in); err != nil {
		return err
	}
	rev, err := s.services.Revisions.Create(c.UserContext(), sc, c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rev)
}

func (s *Server) handleGetRevision(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	rev, err := s.services.Revisions.Get(c.UserContext(), sc, c.Params("id"), c.Params("rid"))
	if err != nil {
		return err
	}
	return c.JSON(rev)
}

func (s *Server) handleApproveRevision(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	rev, err := s.services.Revisions.Approve(c.UserContext(), sc, c.Params("id"), c.Params("rid"))
	if err != nil {
		return err
	}
	return c.JSON(rev)
}

func (s *Server) handleSupersedeRevision(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	rev, err := s.services.Revisions.Supersede(c.UserContext(), sc, c.Params("id"), c.Params("rid"))
	if err != nil {
		return err
	}
	return c.JSON(rev)
}

// ==================== Review Queue ====================

func (s *Server) handleReviewStart(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	pos, err := s.services.Review.Start(c.UserContext(), sc, review.Filter{CompanyID: c.Query("company_id")})
	if err != nil {
		return err
	}
	return c.JSON(pos)
}

func (s *Server) handleReviewNavigate(c *fiber.Ctx) error {
	sc, err := requestScope(c)
	if err != nil {
		return err
	}
	pos, err := s.services.Review.Navigate(c.UserContext(), sc,
		review.Filter{CompanyID: c.Query("company_id")}, c.Query("current_id"))
	if err != nil {
		return err
	}
	return c.JSON(pos)
}
