package types

import (
	"strings"
	"time"
)

type Site struct {
	// Name - unique site identifier used in request routing
	Name string `json:"name" db:"name" yaml:"name"`

	// Methods - default allowed methods for resources without their own CORS methods
	Methods MethodMask `json:"methods" db:"methods" yaml:"-"`

	// Btime - birth time
	Btime time.Time `json:"btime" db:"btime" yaml:"-"`
}

// Resource is the stored row describing one path of a site.
type Resource struct {
	Site string `json:"site" db:"site"`
	Path string `json:"path" db:"path"`

	MimeType string `json:"mimeType" db:"mime_type"`
	Charset  string `json:"charset" db:"charset"`
	Encoding string `json:"encoding" db:"encoding"`
	Language string `json:"language" db:"language"`

	// Size - total bytes over all chunks
	Size int64 `json:"size" db:"size"`

	// Version - incremented on every content change
	Version int64 `json:"version" db:"version"`

	// LastModified - unix seconds of the last content change
	LastModified int64 `json:"lastModified" db:"last_modified"`

	CacheImmutable bool   `json:"cacheImmutable" db:"cache_immutable"`
	CachePreset    uint8  `json:"cachePreset" db:"cache_preset"`
	CacheCustom    string `json:"cacheCustom" db:"cache_custom"`

	CORSMethods MethodMask `json:"corsMethods" db:"cors_methods"`
	CORSOrigins string     `json:"corsOrigins" db:"cors_origins"`
	CORSPreset  uint8      `json:"corsPreset" db:"cors_preset"`
	CORSCustom  string     `json:"corsCustom" db:"cors_custom"`

	RedirectCode     uint16 `json:"redirectCode" db:"redirect_code"`
	RedirectLocation string `json:"redirectLocation" db:"redirect_location"`
}

func (r *Resource) TableName() string {
	return "resource"
}

func (r *Resource) Metadata() ResourceMetadata {
	return ResourceMetadata{
		Properties: ResourceProperties{
			MimeType: r.MimeType,
			Charset:  r.Charset,
			Encoding: r.Encoding,
			Language: r.Language,
		},
		Size:         r.Size,
		Version:      r.Version,
		LastModified: r.LastModified,
	}
}

func (r *Resource) HeaderInfo() HeaderInfo {
	var origins []string
	if r.CORSOrigins != "" {
		origins = strings.Split(r.CORSOrigins, ",")
	}
	return HeaderInfo{
		Cache: CacheControl{
			Immutable: r.CacheImmutable,
			Preset:    r.CachePreset,
			Custom:    r.CacheCustom,
		},
		CORS: CORSPolicy{
			Methods: r.CORSMethods,
			Origins: origins,
			Preset:  r.CORSPreset,
			Custom:  r.CORSCustom,
		},
		Redirect: Redirect{
			Code:     r.RedirectCode,
			Location: r.RedirectLocation,
		},
	}
}

// SetHeaderInfo copies a header policy into the row columns.
func (r *Resource) SetHeaderInfo(h HeaderInfo) {
	r.CacheImmutable = h.Cache.Immutable
	r.CachePreset = h.Cache.Preset
	r.CacheCustom = h.Cache.Custom
	r.CORSMethods = h.CORS.Methods
	r.CORSOrigins = strings.Join(h.CORS.Origins, ",")
	r.CORSPreset = h.CORS.Preset
	r.CORSCustom = h.CORS.Custom
	r.RedirectCode = h.Redirect.Code
	r.RedirectLocation = h.Redirect.Location
}

type ResourceProperties struct {
	MimeType string `json:"mimeType" yaml:"mimeType"`
	Charset  string `json:"charset" yaml:"charset"`
	Encoding string `json:"encoding" yaml:"encoding"`
	Language string `json:"language" yaml:"language"`
}

// ContentType renders mime type and charset as a Content-Type header value.
func (p ResourceProperties) ContentType() string {
	if p.MimeType == "" {
		return ""
	}
	if p.Charset == "" {
		return p.MimeType
	}
	return p.MimeType + "; charset=" + p.Charset
}

// IsText reports whether the content is safe to print as text.
func (p ResourceProperties) IsText() bool {
	mime := strings.ToLower(p.MimeType)
	switch {
	case strings.HasPrefix(mime, "text/"):
		return true
	case mime == "application/javascript",
		mime == "application/json",
		mime == "application/xml",
		mime == "image/svg+xml":
		return true
	}
	return false
}

type ResourceMetadata struct {
	Properties   ResourceProperties `json:"properties"`
	Size         int64              `json:"size"`
	Version      int64              `json:"version"`
	LastModified int64              `json:"lastModified"`
}

func (m ResourceMetadata) LastModifiedTime() time.Time {
	return time.Unix(m.LastModified, 0).UTC()
}

type CacheControl struct {
	Immutable bool   `json:"immutableFlag" yaml:"immutable"`
	Preset    uint8  `json:"preset" yaml:"preset"`
	Custom    string `json:"custom" yaml:"custom"`
}

// cache presets, index is CacheControl.Preset
var cachePresets = []string{
	"",
	"no-store",
	"no-cache",
	"max-age=60",
	"max-age=3600",
	"max-age=86400",
	"max-age=604800",
	"max-age=31536000",
}

// Header renders the Cache-Control header value.
func (c CacheControl) Header() string {
	parts := make([]string, 0, 3)
	if int(c.Preset) < len(cachePresets) && cachePresets[c.Preset] != "" {
		parts = append(parts, cachePresets[c.Preset])
	}
	if c.Immutable {
		parts = append(parts, "immutable")
	}
	if c.Custom != "" {
		parts = append(parts, c.Custom)
	}
	return strings.Join(parts, ", ")
}

type CORSPolicy struct {
	Methods MethodMask `json:"methods" yaml:"-"`
	Origins []string   `json:"origins" yaml:"origins"`
	Preset  uint8      `json:"preset" yaml:"preset"`
	Custom  string     `json:"custom" yaml:"custom"`
}

type Redirect struct {
	Code     uint16 `json:"code" yaml:"code"`
	Location string `json:"location" yaml:"location"`
}

type HeaderInfo struct {
	Cache    CacheControl `json:"cache" yaml:"cache"`
	CORS     CORSPolicy   `json:"cors" yaml:"cors"`
	Redirect Redirect     `json:"redirect" yaml:"redirect"`
}
