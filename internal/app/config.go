package app

import (
	"strings"

	"github.com/vitisalign/vitisalign-backend/internal/logger"
	"github.com/vitisalign/vitisalign-backend/internal/utils"
)

type Config struct {
	Port string

	// ReferentialPath points at the ontology file; ReferentialFormat is
	// "concepts" for an already-normalized dump or "raw" for per-row
	// ontology exports that need merging.
	ReferentialPath   string
	ReferentialFormat string
	MergePolicyPath   string

	// IndexDir, when set, is where the embedding snapshot is persisted
	// and reloaded from across restarts.
	IndexDir string

	AlignTopK    int
	AllowOrigins []string
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	referentialPath := utils.GetEnv("REFERENTIAL_PATH", "data/reference/refs_clean.json", log)
	referentialFormat := strings.ToLower(utils.GetEnv("REFERENTIAL_FORMAT", "concepts", log))
	mergePolicyPath := utils.GetEnv("MERGE_POLICY_PATH", "", log)
	indexDir := utils.GetEnv("INDEX_DIR", "", log)
	alignTopK := utils.GetEnvAsInt("ALIGN_TOP_K", 5, log)

	var origins []string
	for _, o := range strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "", log), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Port:              port,
		ReferentialPath:   referentialPath,
		ReferentialFormat: referentialFormat,
		MergePolicyPath:   mergePolicyPath,
		IndexDir:          indexDir,
		AlignTopK:         alignTopK,
		AllowOrigins:      origins,
	}
}
