package controller

import (
	"course_progress_backend/internal/model"
	"course_progress_backend/internal/service"
	"course_progress_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	Service *service.ProgressService
}

func NewProgressController(svc *service.ProgressService) *ProgressController {
	return &ProgressController{Service: svc}
}

// @Summary 上报课时学习进度
// @Description 播放位置按事件时间取最新，观看时长只增不减，完成状态不可撤销
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "报名ID"
// @Param lessonId path int true "课时ID"
// @Param body body model.LessonProgressUpdate true "进度"
// @Success 200 {object} util.Response{data=model.LessonProgress}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/enrollments/{id}/lessons/{lessonId}/progress [put]
func (c *ProgressController) MarkLesson(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	enrollmentID, ok := util.ParseID(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid enrollment id")
		return
	}
	lessonID, ok := util.ParseID(ctx.Param("lessonId"))
	if !ok {
		util.BadRequest(ctx, "invalid lesson id")
		return
	}
	var update model.LessonProgressUpdate
	if err := ctx.ShouldBindJSON(&update); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	row, err := c.Service.MarkLessonProgress(ctx.Request.Context(), enrollmentID, user.UserID, lessonID, update, time.Now())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, row)
}

// @Summary 获取课程学习进度
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path int true "报名ID"
// @Success 200 {object} util.Response{data=model.ProgressSnapshot}
// @Failure 403 {object} util.Response
// @Router /api/enrollments/{id}/progress [get]
func (c *ProgressController) GetProgress(ctx *gin.Context) {
	enrollmentID, ok := util.ParseID(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid enrollment id")
		return
	}
	if _, err := c.Service.AuthorizeEnrollment(ctx.Request.Context(), enrollmentID, util.GetUserFromContext(ctx)); err != nil {
		util.RespondError(ctx, err)
		return
	}

	snap, err := c.Service.ComputeProgress(ctx.Request.Context(), enrollmentID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, snap)
}
