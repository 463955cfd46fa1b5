package narrative

import (
	"github.com/ppiankov/surveylens/internal/catalog"
	"github.com/ppiankov/surveylens/internal/model"
)

// Assemble packages the filtered records of two organizations, enriched
// with catalog text, into the payload a narrative backend expects.
// Records of any other organization are ignored. Unknown catalog ids are
// labelled with the catalog sentinels rather than dropped.
func Assemble(org1ID, org2ID int, records []model.NormalizedRecord, idx *catalog.Index) model.ComparisonRequest {
	req := model.ComparisonRequest{
		Org1: profile(org1ID, idx),
		Org2: profile(org2ID, idx),
	}

	for _, rec := range records {
		if !rec.Valid() {
			continue
		}
		switch rec.OrganizationID {
		case org1ID:
			req.Org1.Responses = append(req.Org1.Responses, entry(rec, idx))
		case org2ID:
			req.Org2.Responses = append(req.Org2.Responses, entry(rec, idx))
		}
	}

	return req
}

// WithScope returns a copy of req carrying the comparison filters
func WithScope(req model.ComparisonRequest, scope model.Scope, idx *catalog.Index) model.ComparisonRequest {
	req.ClauseID = scope.ClauseID
	req.StartDate = scope.StartDate
	req.EndDate = scope.EndDate
	if scope.ClauseID != nil && idx != nil {
		req.Clause = idx.Clause(*scope.ClauseID).DisplayName()
	}
	return req
}

func profile(orgID int, idx *catalog.Index) model.OrganizationProfile {
	org := model.Organization{ID: orgID}
	if idx != nil {
		org = idx.Organization(orgID)
		org.ID = orgID
		org.Name = idx.OrganizationName(orgID)
	}
	return model.OrganizationProfile{
		Organization: org,
		Responses:    []model.ResponseEntry{},
	}
}

func entry(rec model.NormalizedRecord, idx *catalog.Index) model.ResponseEntry {
	e := model.ResponseEntry{
		ClauseID:   rec.ClauseID,
		QuestionID: rec.QuestionID,
		Category:   rec.Category,
		Answer:     rec.Answer,
		Comment:    rec.Comment,
		Date:       rec.Date,
	}
	if idx != nil {
		e.Clause = idx.Clause(rec.ClauseID).DisplayName()
		e.Question = idx.Question(rec.QuestionID).DisplayName()
	}
	return e
}
