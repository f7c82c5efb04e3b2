package controller

import (
	"course_progress_backend/internal/service"
	"course_progress_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Service *service.AttemptService
}

func NewAttemptController(svc *service.AttemptService) *AttemptController {
	return &AttemptController{Service: svc}
}

// @Summary 开始测验作答
// @Tags 测验作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Param body body service.StartAttemptRequest true "报名信息"
// @Success 201 {object} util.Response{data=model.AssessmentAttempt}
// @Failure 403 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/assessments/{id}/attempts [post]
func (c *AttemptController) Start(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	assessmentID, ok := util.ParseID(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid assessment id")
		return
	}
	var req service.StartAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.Service.Start(ctx.Request.Context(), assessmentID, user.UserID, req.EnrollmentID, time.Now())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

// @Summary 提交答卷
// @Description 自动评分；含问答题时等待教师批改
// @Tags 测验作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param attemptId path int true "作答ID"
// @Param body body service.SubmitAnswersRequest true "答案"
// @Success 200 {object} util.Response{data=model.AssessmentAttempt}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/attempts/{attemptId}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	attemptID, ok := util.ParseID(ctx.Param("attemptId"))
	if !ok {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}
	var req service.SubmitAnswersRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.Service.Submit(ctx.Request.Context(), attemptID, user.UserID, req.Answers, time.Now())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 放弃作答（超时或主动放弃）
// @Tags 测验作答
// @Produce json
// @Security BearerAuth
// @Param attemptId path int true "作答ID"
// @Success 200 {object} util.Response{data=model.AssessmentAttempt}
// @Failure 409 {object} util.Response
// @Router /api/attempts/{attemptId}/expire [post]
func (c *AttemptController) Expire(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	attemptID, ok := util.ParseID(ctx.Param("attemptId"))
	if !ok {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}

	attempt, err := c.Service.Expire(ctx.Request.Context(), attemptID, user.UserID, time.Now())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 获取我的作答记录
// @Description 按开始时间排序，并给出计分的最佳作答
// @Tags 测验作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=service.AttemptHistory}
// @Router /api/assessments/{id}/attempts [get]
func (c *AttemptController) List(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	assessmentID, ok := util.ParseID(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid assessment id")
		return
	}

	history, err := c.Service.ListAttempts(ctx.Request.Context(), assessmentID, user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, history)
}

// @Summary 获取作答结果
// @Tags 测验作答
// @Produce json
// @Security BearerAuth
// @Param attemptId path int true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptResult}
// @Failure 403 {object} util.Response
// @Router /api/attempts/{attemptId} [get]
func (c *AttemptController) Result(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	attemptID, ok := util.ParseID(ctx.Param("attemptId"))
	if !ok {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}

	result, err := c.Service.Result(ctx.Request.Context(), attemptID, user.UserID, user.IsStaff())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 教师端：待批改作答列表
// @Tags 测验批改
// @Produce json
// @Security BearerAuth
// @Param assessmentId query int false "测验ID"
// @Success 200 {object} util.Response{data=[]model.AssessmentAttempt}
// @Router /api/teacher/attempts/pending [get]
func (c *AttemptController) ListPending(ctx *gin.Context) {
	assessmentID := uint(0)
	if idStr := ctx.Query("assessmentId"); idStr != "" {
		id, ok := util.ParseID(idStr)
		if !ok {
			util.BadRequest(ctx, "invalid assessment id")
			return
		}
		assessmentID = id
	}

	attempts, err := c.Service.ListPendingManual(ctx.Request.Context(), assessmentID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// @Summary 教师端：批改问答题
// @Tags 测验批改
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param attemptId path int true "作答ID"
// @Param body body service.ManualGradeRequest true "评分"
// @Success 200 {object} util.Response{data=model.AssessmentAttempt}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/teacher/attempts/{attemptId}/grade [post]
func (c *AttemptController) Grade(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	attemptID, ok := util.ParseID(ctx.Param("attemptId"))
	if !ok {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}
	var req service.ManualGradeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.Service.ManualGrade(ctx.Request.Context(), attemptID, user.UserID, req.Grades, time.Now())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 教师端：重置进行中的作答
// @Description 重置的作答不计入次数限制
// @Tags 测验批改
// @Produce json
// @Security BearerAuth
// @Param attemptId path int true "作答ID"
// @Success 200 {object} util.Response{data=model.AssessmentAttempt}
// @Failure 409 {object} util.Response
// @Router /api/teacher/attempts/{attemptId}/reset [post]
func (c *AttemptController) Reset(ctx *gin.Context) {
	attemptID, ok := util.ParseID(ctx.Param("attemptId"))
	if !ok {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}

	attempt, err := c.Service.Reset(ctx.Request.Context(), attemptID, time.Now())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}
