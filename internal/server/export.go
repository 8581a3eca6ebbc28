package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/saasops/internal/observability/logger"
	"github.com/smallbiznis/saasops/internal/report"
	"go.uber.org/zap"
)

const pdfContentType = "application/pdf"

func (s *Server) ExportReport(c *gin.Context) {
	req, ok := s.rangeRequest(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	rep, err := s.arrSvc.Report(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", rep.RunID)

	body, err := s.renderer.Render(ctx, rep)
	if err != nil {
		logger.FromContext(ctx).Error("render report pdf failed", zap.Error(err), zap.String("run_id", rep.RunID))
		AbortWithError(c, ErrInternal)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(rep)))
	c.Data(http.StatusOK, pdfContentType, body)
}
