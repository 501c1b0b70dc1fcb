package handler

type UploadParams struct {
	Folder       string `validate:"required,max=64"`
	Strategy     string `validate:"omitempty,oneof=optimistic sync quick"`
	KeepOriginal bool
	Priority     int `validate:"gte=0,lte=2"`
}
