package dto

// ProposeHandoverRequest proposes handing a found item over to its
// owner. Photo URLs point at already-uploaded media; the ID photo is
// optional at this stage.
type ProposeHandoverRequest struct {
	Reason           string   `json:"reason" binding:"required,min=3,max=1000"`
	RequesterIDPhoto string   `json:"requesterIdPhoto" binding:"omitempty,url"`
	ItemPhotos       []string `json:"itemPhotos" binding:"max=3,dive,url"`
}

// ProposeClaimRequest asserts ownership of a found item. A claim needs
// the requester's ID photo and at least one piece of photo evidence.
type ProposeClaimRequest struct {
	Reason           string   `json:"reason" binding:"required,min=3,max=1000"`
	RequesterIDPhoto string   `json:"requesterIdPhoto" binding:"required,url"`
	EvidencePhotos   []string `json:"evidencePhotos" binding:"required,min=1,max=5,dive,url"`
}

// RequestActionResponse reports the resulting state of a lifecycle
// transition.
type RequestActionResponse struct {
	MessageID int64  `json:"messageId"`
	Status    string `json:"status"`
}
