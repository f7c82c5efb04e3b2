package controller

import (
	"course_progress_backend/internal/service"
	"course_progress_backend/internal/util"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
)

type CertificateController struct {
	Service  *service.CertificateService
	Progress *service.ProgressService
}

func NewCertificateController(svc *service.CertificateService, progress *service.ProgressService) *CertificateController {
	return &CertificateController{Service: svc, Progress: progress}
}

// @Summary 查询证书资格
// @Description 返回是否满足证书条件、所有未满足的原因以及已颁发的证书
// @Tags 结业证书
// @Produce json
// @Security BearerAuth
// @Param id path int true "报名ID"
// @Success 200 {object} util.Response{data=service.EligibilityView}
// @Failure 403 {object} util.Response
// @Router /api/enrollments/{id}/certificate/eligibility [get]
func (c *CertificateController) GetEligibility(ctx *gin.Context) {
	enrollmentID, ok := util.ParseID(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid enrollment id")
		return
	}
	if _, err := c.Progress.AuthorizeEnrollment(ctx.Request.Context(), enrollmentID, util.GetUserFromContext(ctx)); err != nil {
		util.RespondError(ctx, err)
		return
	}

	view, err := c.Service.GetEligibility(ctx.Request.Context(), enrollmentID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 颁发结业证书
// @Description 已颁发时返回原证书；不满足条件时返回 409 及原因
// @Tags 结业证书
// @Produce json
// @Security BearerAuth
// @Param id path int true "报名ID"
// @Success 201 {object} util.Response{data=model.Certificate}
// @Failure 409 {object} util.Response{data=model.Eligibility}
// @Router /api/enrollments/{id}/certificate [post]
func (c *CertificateController) Issue(ctx *gin.Context) {
	enrollmentID, ok := util.ParseID(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid enrollment id")
		return
	}
	if _, err := c.Progress.AuthorizeEnrollment(ctx.Request.Context(), enrollmentID, util.GetUserFromContext(ctx)); err != nil {
		util.RespondError(ctx, err)
		return
	}

	cert, verdict, err := c.Service.Issue(ctx.Request.Context(), enrollmentID, time.Now())
	if errors.Is(err, util.ErrNotEligible) {
		util.RespondErrorWithData(ctx, err, verdict)
		return
	}
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, cert)
}
