package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
)

func (s *Server) ARRTable(c *gin.Context) {
	query, err := bindReportQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	scope, err := query.scope()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.arrSvc.Table(c.Request.Context(), scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CustomerARR(c *gin.Context) {
	req, ok := s.pointRequest(c)
	if !ok {
		return
	}
	resp, err := s.arrSvc.CustomerARR(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CustomerCARR(c *gin.Context) {
	req, ok := s.pointRequest(c)
	if !ok {
		return
	}
	resp, err := s.arrSvc.CustomerCARR(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CustomerARRByPeriod(c *gin.Context) {
	req, ok := s.rangeRequest(c)
	if !ok {
		return
	}
	resp, err := s.arrSvc.CustomerARRByPeriod(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) NewARR(c *gin.Context) {
	req, ok := s.pointRequest(c)
	if !ok {
		return
	}
	resp, err := s.arrSvc.NewARR(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ARRChanges(c *gin.Context) {
	req, ok := s.rangeRequest(c)
	if !ok {
		return
	}
	resp, err := s.arrSvc.Changes(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ARRSeries(c *gin.Context) {
	req, ok := s.rangeRequest(c)
	if !ok {
		return
	}
	resp, err := s.arrSvc.Series(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) Bookings(c *gin.Context) {
	req, ok := s.rangeRequest(c)
	if !ok {
		return
	}
	resp, err := s.arrSvc.Bookings(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BookingsSummary(c *gin.Context) {
	req, ok := s.rangeRequest(c)
	if !ok {
		return
	}
	resp, err := s.arrSvc.BookingsSummary(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) Revenue(c *gin.Context) {
	req, ok := s.rangeRequest(c)
	if !ok {
		return
	}
	resp, err := s.arrSvc.Revenue(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MRRMetrics(c *gin.Context) {
	req, ok := s.rangeRequest(c)
	if !ok {
		return
	}
	resp, err := s.arrSvc.MRRMetrics(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) Retention(c *gin.Context) {
	req, ok := s.pointRequest(c)
	if !ok {
		return
	}
	resp, err := s.arrSvc.Retention(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("run_id", resp.RunID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) pointRequest(c *gin.Context) (req arrdomain.PointRequest, ok bool) {
	query, err := bindReportQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return req, false
	}
	req, err = query.pointRequest()
	if err != nil {
		AbortWithError(c, err)
		return req, false
	}
	return req, true
}

func (s *Server) rangeRequest(c *gin.Context) (req arrdomain.RangeRequest, ok bool) {
	query, err := bindReportQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return req, false
	}
	req, err = query.rangeRequest()
	if err != nil {
		AbortWithError(c, err)
		return req, false
	}
	return req, true
}
