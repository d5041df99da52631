package session

import (
	"encoding/json"
	"fmt"
)

// storageScript reads both storage areas of the current document.
const storageScript = `() => {
  const dump = (store) => {
    const out = {};
    for (let i = 0; i < store.length; i++) {
      const key = store.key(i);
      out[key] = store.getItem(key);
    }
    return out;
  };
  return { localStorage: dump(window.localStorage), sessionStorage: dump(window.sessionStorage) };
}`

// initScript builds the pre-navigation script that seeds both storage areas.
// It runs before page scripts in every new document of the context.
func initScript(local, sess map[string]string) (string, error) {
	payload, err := json.Marshal(struct {
		Local   map[string]string `json:"local"`
		Session map[string]string `json:"session"`
	}{local, sess})
	if err != nil {
		return "", fmt.Errorf("failed to encode storage: %w", err)
	}

	return fmt.Sprintf(`(() => {
  const data = %s;
  try {
    for (const [k, v] of Object.entries(data.local || {})) window.localStorage.setItem(k, v);
    for (const [k, v] of Object.entries(data.session || {})) window.sessionStorage.setItem(k, v);
  } catch (e) {}
})();`, payload), nil
}

// decodeStorage converts the evaluate result of storageScript.
func decodeStorage(res any) (local, sess map[string]string, err error) {
	obj, ok := res.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected storage result %T", res)
	}
	local, err = stringMap(obj["localStorage"])
	if err != nil {
		return nil, nil, fmt.Errorf("localStorage: %w", err)
	}
	sess, err = stringMap(obj["sessionStorage"])
	if err != nil {
		return nil, nil, fmt.Errorf("sessionStorage: %w", err)
	}
	return local, sess, nil
}

func stringMap(v any) (map[string]string, error) {
	out := map[string]string{}
	if v == nil {
		return out, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected value %T", v)
	}
	for k, raw := range m {
		switch val := raw.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out, nil
}
