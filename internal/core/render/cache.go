package render

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/clipworks/reframe/pkg/ffkit"
	"github.com/ixugo/goddd/pkg/conc"
)

// encodeCache 片段级编码结果缓存。多片段渲染里同一片段同一版本
// 同一参数的编码结果可直接复用，键含版本号保证编辑后自然失效
type encodeCache struct {
	files *conc.Map[string, string]
}

func newEncodeCache() *encodeCache {
	return &encodeCache{files: conc.NewMap[string, string]()}
}

func cacheKey(clipID string, version int, params ffkit.ClipParams) string {
	b, _ := json.Marshal(params)
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%s_v%d_%s", clipID, version, hex.EncodeToString(sum[:8]))
}

// Get 命中且文件仍在磁盘上才返回
func (c *encodeCache) Get(key string) (string, bool) {
	path, ok := c.files.Load(key)
	if !ok {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		c.files.Delete(key)
		return "", false
	}
	return path, true
}

func (c *encodeCache) Put(key, path string) {
	c.files.Store(key, path)
}
