package httpapi

import (
	"time"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
	"github.com/zcy-charity/jar-service/internal/app/domain/volunteer"
)

type jarResponse struct {
	ID           string     `json:"id"`
	ExternalID   string     `json:"external_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	VolunteerID  string     `json:"volunteer_id"`
	Tags         []string   `json:"tags"`
	Goal         *int64     `json:"goal"`
	TitleImgURL  string     `json:"title_img_url,omitempty"`
	ImgAlt       string     `json:"img_alt,omitempty"`
	DisplayOrder int        `json:"display_order"`
	DateAdded    time.Time  `json:"date_added"`
	DateClosed   *time.Time `json:"date_closed"`
}

type jarSummaryResponse struct {
	jarResponse
	VolunteerName  string   `json:"volunteer_name,omitempty"`
	CurrentSum     *int64   `json:"current_sum"`
	FillPercentage *float64 `json:"fill_percentage"`
}

type sampleResponse struct {
	ID          int64     `json:"id"`
	Amount      *int64    `json:"amount"`
	IncomeDelta int64     `json:"income_delta"`
	ObservedAt  time.Time `json:"observed_at"`
}

type albumImageResponse struct {
	ID        string    `json:"id"`
	ImgURL    string    `json:"img_url"`
	ImgAlt    string    `json:"img_alt,omitempty"`
	Position  int       `json:"position"`
	DateAdded time.Time `json:"date_added"`
}

type tagResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type volunteerResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	PublicName     string `json:"public_name"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
	PhotoURL       string `json:"photo_url,omitempty"`
	Active         bool   `json:"active"`
}

type createJarRequest struct {
	ExternalID   string   `json:"external_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Goal         *int64   `json:"goal"`
	ImgAlt       string   `json:"img_alt"`
	DisplayOrder int      `json:"display_order"`
	Tags         []string `json:"tags"`
}

type updateJarRequest struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Goal         *int64   `json:"goal"`
	ImgAlt       *string  `json:"img_alt"`
	DisplayOrder *int     `json:"display_order"`
	Tags         []string `json:"tags"`
}

type createTagRequest struct {
	Name string `json:"name"`
}

type createVolunteerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	PublicName     string `json:"public_name"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	PhoneNumber    string `json:"phone_number"`
	AdditionalInfo string `json:"additional_info"`
}

type updateVolunteerRequest struct {
	PublicName     *string `json:"public_name"`
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	PhoneNumber    *string `json:"phone_number"`
	AdditionalInfo *string `json:"additional_info"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string            `json:"token"`
	Volunteer volunteerResponse `json:"volunteer"`
}

type syncReportResponse struct {
	Total      int       `json:"total"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
	Closed     int       `json:"closed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (h *Handler) toJarResponse(j jar.Jar) jarResponse {
	tags := j.Tags
	if tags == nil {
		tags = []string{}
	}
	return jarResponse{
		ID:           j.ID,
		ExternalID:   j.ExternalID,
		Title:        j.Title,
		Description:  j.Description,
		VolunteerID:  j.VolunteerID,
		Tags:         tags,
		Goal:         j.Goal,
		TitleImgURL:  h.jars.ImageURL(j.TitleImgRef),
		ImgAlt:       j.ImgAlt,
		DisplayOrder: j.DisplayOrder,
		DateAdded:    j.DateAdded,
		DateClosed:   j.DateClosed,
	}
}

func (h *Handler) toSummaryResponse(s jar.Summary) jarSummaryResponse {
	return jarSummaryResponse{
		jarResponse:    h.toJarResponse(s.Jar),
		VolunteerName:  s.VolunteerName,
		CurrentSum:     s.CurrentSum,
		FillPercentage: s.FillPercentage,
	}
}

func (h *Handler) toSummaryResponses(list []jar.Summary) []jarSummaryResponse {
	out := make([]jarSummaryResponse, 0, len(list))
	for _, s := range list {
		out = append(out, h.toSummaryResponse(s))
	}
	return out
}

func toSampleResponses(list []jar.BalanceSample) []sampleResponse {
	out := make([]sampleResponse, 0, len(list))
	for _, s := range list {
		out = append(out, sampleResponse{
			ID:          s.ID,
			Amount:      s.Amount,
			IncomeDelta: s.IncomeDelta,
			ObservedAt:  s.ObservedAt,
		})
	}
	return out
}

func (h *Handler) toAlbumResponses(list []jar.AlbumImage) []albumImageResponse {
	out := make([]albumImageResponse, 0, len(list))
	for _, img := range list {
		out = append(out, albumImageResponse{
			ID:        img.ID,
			ImgURL:    h.jars.ImageURL(img.ImgRef),
			ImgAlt:    img.ImgAlt,
			Position:  img.Position,
			DateAdded: img.DateAdded,
		})
	}
	return out
}

func toTagResponses(list []jar.Tag) []tagResponse {
	out := make([]tagResponse, 0, len(list))
	for _, t := range list {
		out = append(out, tagResponse{ID: t.ID, Name: t.Name})
	}
	return out
}

func (h *Handler) toVolunteerResponse(v volunteer.Volunteer) volunteerResponse {
	return volunteerResponse{
		ID:             v.ID,
		Email:          v.Email,
		PublicName:     v.PublicName,
		FirstName:      v.FirstName,
		LastName:       v.LastName,
		PhoneNumber:    v.PhoneNumber,
		AdditionalInfo: v.AdditionalInfo,
		PhotoURL:       h.jars.ImageURL(v.PhotoRef),
		Active:         v.Active,
	}
}

func (h *Handler) toVolunteerResponses(list []volunteer.Volunteer) []volunteerResponse {
	out := make([]volunteerResponse, 0, len(list))
	for _, v := range list {
		out = append(out, h.toVolunteerResponse(v))
	}
	return out
}
