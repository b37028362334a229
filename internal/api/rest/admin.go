package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/model"
	"github.com/lvdashuaibi/votecore/internal/service"
)

// AdminController 选举管理接口
type AdminController struct {
	scheduler *service.ElectionScheduler
	registry  *service.CandidateRegistry
	results   *service.ResultsService
}

func NewAdminController(
	scheduler *service.ElectionScheduler,
	registry *service.CandidateRegistry,
	results *service.ResultsService,
) *AdminController {
	return &AdminController{scheduler: scheduler, registry: registry, results: results}
}

func (c *AdminController) RegisterRoutes(engine *gin.Engine, adminToken string) {
	group := engine.Group("/api/admin", AdminAuthMiddleware(adminToken))

	group.GET("/elections", c.listElections)
	group.POST("/elections", c.createElection)
	group.GET("/elections/:id", c.getElection)
	group.PUT("/elections/:id", c.editElection)
	group.DELETE("/elections/:id", c.deleteElection)
	group.POST("/elections/:id/terminate", c.terminateElection)
	group.POST("/elections/:id/disabled-municipalities", c.disableMunicipality)
	group.GET("/elections/:id/candidate-sets", c.listCandidateSets)
	group.POST("/elections/:id/candidate-sets", c.registerCandidateSet)
	group.GET("/elections/:id/results", c.getResults)
	group.POST("/elections/:id/archive", c.archiveResults)

	group.GET("/candidates/:id", c.getCandidate)
	group.PUT("/candidates/:id", c.updateCandidate)
	group.DELETE("/candidates/:id", c.removeCandidate)
}

type electionView struct {
	*model.Election
	Status model.ElectionStatus `json:"status"`
}

type disableRequest struct {
	Municipality string `json:"municipality"`
}

func (c *AdminController) view(e *model.Election) electionView {
	return electionView{Election: e, Status: c.scheduler.Status(e)}
}

func (c *AdminController) listElections(g *gin.Context) {
	elections, err := c.scheduler.List(g.Request.Context())
	if err != nil {
		writeError(g, err)
		return
	}
	views := make([]electionView, len(elections))
	for i, e := range elections {
		views[i] = c.view(e)
	}
	g.JSON(http.StatusOK, views)
}

func (c *AdminController) createElection(g *gin.Context) {
	var req service.ScheduleRequest
	if err := g.ShouldBindJSON(&req); err != nil {
		writeError(g, apperr.Validation("请求格式错误: %v", err))
		return
	}
	e, err := c.scheduler.Create(g.Request.Context(), req)
	if err != nil {
		writeError(g, err)
		return
	}
	g.JSON(http.StatusCreated, c.view(e))
}

func (c *AdminController) getElection(g *gin.Context) {
	e, err := c.scheduler.Get(g.Request.Context(), g.Param("id"))
	if err != nil {
		writeError(g, err)
		return
	}
	g.JSON(http.StatusOK, c.view(e))
}

func (c *AdminController) editElection(g *gin.Context) {
	var req service.ScheduleRequest
	if err := g.ShouldBindJSON(&req); err != nil {
		writeError(g, apperr.Validation("请求格式错误: %v", err))
		return
	}
	req.ElectionID = g.Param("id")
	e, err := c.scheduler.Edit(g.Request.Context(), req)
	if err != nil {
		writeError(g, err)
		return
	}
	g.JSON(http.StatusOK, c.view(e))
}

func (c *AdminController) deleteElection(g *gin.Context) {
	if err := c.scheduler.Delete(g.Request.Context(), g.Param("id")); err != nil {
		writeError(g, err)
		return
	}
	g.Status(http.StatusNoContent)
}

func (c *AdminController) terminateElection(g *gin.Context) {
	e, err := c.scheduler.Terminate(g.Request.Context(), g.Param("id"))
	if err != nil {
		writeError(g, err)
		return
	}
	g.JSON(http.StatusOK, c.view(e))
}

func (c *AdminController) disableMunicipality(g *gin.Context) {
	var req disableRequest
	if err := g.ShouldBindJSON(&req); err != nil {
		writeError(g, apperr.Validation("请求格式错误: %v", err))
		return
	}
	if err := c.scheduler.DisableMunicipality(g.Request.Context(), g.Param("id"), req.Municipality); err != nil {
		writeError(g, err)
		return
	}
	g.Status(http.StatusNoContent)
}

func (c *AdminController) listCandidateSets(g *gin.Context) {
	sets, err := c.registry.ListCandidateSets(g.Request.Context(), g.Param("id"))
	if err != nil {
		writeError(g, err)
		return
	}
	g.JSON(http.StatusOK, sets)
}

func (c *AdminController) registerCandidateSet(g *gin.Context) {
	var req service.RegisterSetRequest
	if err := g.ShouldBindJSON(&req); err != nil {
		writeError(g, apperr.Validation("请求格式错误: %v", err))
		return
	}
	req.ElectionID = g.Param("id")
	set, err := c.registry.RegisterCandidateSet(g.Request.Context(), req)
	if err != nil {
		writeError(g, err)
		return
	}
	g.JSON(http.StatusCreated, set)
}

func (c *AdminController) getResults(g *gin.Context) {
	results, err := c.results.GetResults(g.Request.Context(), g.Param("id"))
	if err != nil {
		writeError(g, err)
		return
	}
	g.JSON(http.StatusOK, results)
}

func (c *AdminController) archiveResults(g *gin.Context) {
	key, err := c.results.ArchiveResults(g.Request.Context(), g.Param("id"))
	if err != nil {
		writeError(g, err)
		return
	}
	g.JSON(http.StatusOK, gin.H{"key": key})
}

func (c *AdminController) getCandidate(g *gin.Context) {
	rec, err := c.registry.GetCandidate(g.Request.Context(), g.Param("id"))
	if err != nil {
		writeError(g, err)
		return
	}
	g.JSON(http.StatusOK, rec)
}

func (c *AdminController) updateCandidate(g *gin.Context) {
	var req service.UpdateCandidateRequest
	if err := g.ShouldBindJSON(&req); err != nil {
		writeError(g, apperr.Validation("请求格式错误: %v", err))
		return
	}
	rec, err := c.registry.UpdateCandidate(g.Request.Context(), g.Param("id"), req)
	if err != nil {
		writeError(g, err)
		return
	}
	g.JSON(http.StatusOK, rec)
}

func (c *AdminController) removeCandidate(g *gin.Context) {
	if err := c.registry.RemoveCandidate(g.Request.Context(), g.Param("id")); err != nil {
		writeError(g, err)
		return
	}
	g.Status(http.StatusNoContent)
}
