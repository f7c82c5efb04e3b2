package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	MimeJSON = "application/json"
)

// Redis key prefixes
const (
	CurriculumCacheKey = "curriculum:course:%d"
)
