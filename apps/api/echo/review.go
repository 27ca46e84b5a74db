package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/peerly/core/review"
)

type (
	reviewApi struct {
		svc      *review.Service
		validate *validator.Validate
	}

	// GenerateReviewsRequest: reviews_per_student < 1 falls back to the configured default.
	GenerateReviewsRequest struct {
		ReviewsPerStudent int `json:"reviews_per_student"`
	}
)

func registerReviewAPI(g *echo.Group, svc *review.Service, validate *validator.Validate) {
	api := reviewApi{
		svc:      svc,
		validate: validate,
	}

	ag := g.Group("/assignments/:id")
	ag.POST("/reviews/generate", api.generate)
	ag.GET("/reviews", api.queryByAssignment)

	rg := g.Group("/reviews/:id")
	rg.GET("", api.retrieve)
	rg.PUT("", api.save)

	g.GET("/students/:id/reviews", api.queryByReviewer)
	g.GET("/submissions/:id", api.retrieveSubmission)
}

// Handlers

func (api *reviewApi) generate(ctx echo.Context) error {
	asgmtID, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data GenerateReviewsRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateReviewsRequest")
	}

	res, err := api.svc.GenerateReviews(ctx.Request().Context(), asgmtID, data.ReviewsPerStudent)
	if err != nil {
		return errors.Wrap(err, "generating reviews")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *reviewApi) queryByAssignment(ctx echo.Context) error {
	asgmtID, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var ord Ordering
	if err = ord.Bind(ctx, review.OrderingFields...); err != nil {
		return err
	}

	recs, err := api.svc.ListAssignmentReviews(ctx.Request().Context(), asgmtID, ord.Orderings...)
	if err != nil {
		return errors.Wrap(err, "listing assignment reviews")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *reviewApi) queryByReviewer(ctx echo.Context) error {
	studentID, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	recs, err := api.svc.ListReviewerReviews(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "listing reviewer reviews")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *reviewApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	rec, err := api.svc.GetReview(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting review")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *reviewApi) save(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data review.SaveReviewInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveReviewInput")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	rec, err := api.svc.SaveReview(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "saving review")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *reviewApi) retrieveSubmission(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	sub, err := api.svc.GetSubmission(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}
