package helpers

// builtins returns every helper category the C Emitter may reference. Each
// Source string is standalone, portable C99 with no dependency on an
// external runtime library, per spec section 1's "self-contained generated
// C" requirement.
func builtins() []Category {
	return []Category{
		{
			Name: "alloc",
			Source: `static void *btrc_alloc(size_t size) {
    void *p = calloc(1, size);
    if (!p) { fprintf(stderr, "btrc: out of memory\n"); abort(); }
    return p;
}`,
		},
		{
			Name:    "arc",
			Depends: []string{"alloc"},
			Source: `typedef struct btrc_object {
    int refcount;
    void (*dtor)(struct btrc_object *);
    void (*trace)(struct btrc_object *, int);
    int gcmark;
} btrc_object;

static void *btrc_retain(void *p) {
    if (p) ((btrc_object *)p)->refcount++;
    return p;
}

static void btrc_release(void *p) {
    if (!p) return;
    btrc_object *obj = (btrc_object *)p;
    if (--obj->refcount == 0) {
        if (obj->dtor) obj->dtor(obj);
        free(obj);
    }
}`,
		},
		{
			Name:    "arc.cycle",
			Depends: []string{"arc"},
			Source: `/* Cycle collector: a mark pass from a single root that just survived a
 * release, walking every reference-typed field reachable from it so a mark
 * from one member of a cycle reaches the rest of it even though a plain
 * refcount release alone cannot. Cyclable classes set header.trace to
 * their generated *_gc_mark function, which does the recursing. */
static void btrc_gc_mark(btrc_object *obj, int mark) {
    if (!obj || obj->gcmark == mark) return;
    obj->gcmark = mark;
    if (obj->trace) obj->trace(obj, mark);
}
static void btrc_gc_collect_cycles(btrc_object *root) {
    if (root) btrc_gc_mark(root, 1);
}
/* Releases p, then marks from it if the release left it alive — the
 * refcount was above 1 going in, so this release could not have been the
 * one to free it, and it is safe to walk. A release that drops the count
 * to zero frees p itself, leaving nothing to walk. */
static void btrc_release_maybe_cyclic(void *p) {
    if (!p) return;
    int stays_alive = ((btrc_object *)p)->refcount > 1;
    btrc_release(p);
    if (stays_alive) btrc_gc_collect_cycles((btrc_object *)p);
}`,
		},
		{
			Name: "intdiv",
			Source: `static long btrc_idiv(long a, long b) {
    if (b == 0) { fprintf(stderr, "btrc: division by zero\n"); abort(); }
    return a / b;
}
static long btrc_imod(long a, long b) {
    if (b == 0) { fprintf(stderr, "btrc: division by zero\n"); abort(); }
    return a % b;
}`,
		},
		{
			Name:    "strpool",
			Depends: []string{"alloc"},
			Source: `typedef struct { char *data; size_t len; } btrc_string;

static btrc_string btrc_string_from_cstr(const char *s) {
    size_t n = strlen(s);
    char *buf = (char *)btrc_alloc(n + 1);
    memcpy(buf, s, n + 1);
    btrc_string str = { buf, n };
    return str;
}`,
		},
		{
			Name:    "strops",
			Depends: []string{"strpool"},
			Source: `static btrc_string btrc_string_concat(btrc_string a, btrc_string b) {
    char *buf = (char *)btrc_alloc(a.len + b.len + 1);
    memcpy(buf, a.data, a.len);
    memcpy(buf + a.len, b.data, b.len);
    buf[a.len + b.len] = '\0';
    btrc_string out = { buf, a.len + b.len };
    return out;
}

static int btrc_string_eq(btrc_string a, btrc_string b) {
    return a.len == b.len && memcmp(a.data, b.data, a.len) == 0;
}

static const char *btrc_string_cstr(btrc_string s) {
    return s.data;
}`,
		},
		{
			Name: "fstring",
			Depends: []string{"strops"},
			Source: `static btrc_string btrc_string_from_int(long v) {
    char buf[32];
    int n = snprintf(buf, sizeof(buf), "%ld", v);
    return btrc_string_from_cstr(n > 0 ? buf : "");
}

static btrc_string btrc_string_from_double(double v, const char *spec) {
    char fmt[16];
    char buf[64];
    snprintf(fmt, sizeof(fmt), "%%%s", spec && *spec ? spec : "f");
    int n = snprintf(buf, sizeof(buf), fmt, v);
    return btrc_string_from_cstr(n > 0 ? buf : "");
}`,
		},
		{
			Name: "hash",
			Source: `static unsigned long btrc_hash_bytes(const void *data, size_t len) {
    const unsigned char *p = (const unsigned char *)data;
    unsigned long h = 1469598103934665603UL;
    for (size_t i = 0; i < len; i++) {
        h ^= p[i];
        h *= 1099511628211UL;
    }
    return h;
}`,
		},
		{
			Name:    "collection.vector",
			Depends: []string{"alloc"},
			Source: `/* Vector<T> lowers to one generated struct + function family per
 * monomorphization, named <Mangled>_* (e.g. Vector_int_push); this category supplies only
 * the growth-policy helper shared by every instantiation. */
static size_t btrc_vector_grow(size_t cap) {
    return cap < 4 ? 4 : cap * 2;
}`,
		},
		{
			Name:    "collection.map",
			Depends: []string{"hash", "alloc"},
			Source: `/* Map<K,V> lowers to a generated open-addressing hash table per
 * monomorphization; this category supplies the shared probing sequence. */
static size_t btrc_map_probe(size_t h, size_t i, size_t cap) {
    return (h + i * (i + 1) / 2) % cap;
}`,
		},
		{
			Name:    "trycatch",
			Depends: []string{"alloc"},
			Source: `typedef struct btrc_exception_frame {
    jmp_buf buf;
    struct btrc_exception_frame *prev;
    void *thrown;
    int thrown_tag;
} btrc_exception_frame;

/* One frame stack per thread: a plain global here would let two "parallel"
 * tasks each unwinding their own try/catch stomp on the same frame pointer.
 * pthread TLS rather than C11 _Thread_local to stay consistent with the
 * "thread" category's own pthread-based style and this file's C99 target. */
static pthread_key_t btrc_frame_key;
static pthread_once_t btrc_frame_key_once = PTHREAD_ONCE_INIT;

static void btrc_make_frame_key(void) {
    pthread_key_create(&btrc_frame_key, NULL);
}

static btrc_exception_frame *btrc_get_current_frame(void) {
    pthread_once(&btrc_frame_key_once, btrc_make_frame_key);
    return (btrc_exception_frame *)pthread_getspecific(btrc_frame_key);
}

static void btrc_set_current_frame(btrc_exception_frame *frame) {
    pthread_once(&btrc_frame_key_once, btrc_make_frame_key);
    pthread_setspecific(btrc_frame_key, frame);
}

static void btrc_push_frame(btrc_exception_frame *frame) {
    frame->prev = btrc_get_current_frame();
    btrc_set_current_frame(frame);
}

static void btrc_pop_frame(void) {
    btrc_exception_frame *cur = btrc_get_current_frame();
    if (cur) btrc_set_current_frame(cur->prev);
}

static void btrc_throw(void *value, int tag) {
    btrc_exception_frame *cur = btrc_get_current_frame();
    if (!cur) {
        fprintf(stderr, "btrc: uncaught exception\n");
        abort();
    }
    cur->thrown = value;
    cur->thrown_tag = tag;
    longjmp(cur->buf, 1);
}

static void *btrc_current_thrown(void) {
    btrc_exception_frame *cur = btrc_get_current_frame();
    return cur ? cur->thrown : NULL;
}`,
		},
		{
			Name:    "thread",
			Source: `/* "parallel" blocks lower to a pthread-backed fire-and-forget task:
 * btrc_spawn starts the thread and returns its handle, and nothing in the
 * generated code joins it. */
typedef struct { void (*fn)(void *); void *arg; } btrc_task;

static void *btrc_task_trampoline(void *raw) {
    btrc_task *t = (btrc_task *)raw;
    t->fn(t->arg);
    free(t);
    return NULL;
}

static pthread_t btrc_spawn(void (*fn)(void *), void *arg) {
    btrc_task *t = (btrc_task *)malloc(sizeof(btrc_task));
    t->fn = fn;
    t->arg = arg;
    pthread_t th;
    pthread_create(&th, NULL, btrc_task_trampoline, t);
    return th;
}`,
		},
	}
}
