package mocks

//go:generate mockgen -source=../internal/storage/storage.go -destination=storage.go -package=mocks
//go:generate mockgen -source=../internal/cache/cache.go -destination=denylist.go -package=mocks
